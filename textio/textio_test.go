package textio

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	gins "github.com/rovernav/gins"
	"github.com/rovernav/gins/eskf"
)

const sampleLog = `# comment line

IMU 0.010 0.001 -0.002 0.0005 0.01 -0.02 9.81
ODOM 0.020 52 53
GNSS 0.030 51.2 7.5 120.5 88.25 1
GNSS 0.040 51.2 7.5 120.5 0 0
`

func readAll(t *testing.T, input string, opts ReaderOptions) ([]gins.IMU, []*gins.GNSS, []gins.Odom, *Reader) {
	t.Helper()
	var imus []gins.IMU
	var gnss []*gins.GNSS
	var odoms []gins.Odom

	r := NewReader(strings.NewReader(input), opts, golog.NewTestLogger(t))
	err := r.ReadAll(context.Background(), Handlers{
		IMU:  func(s gins.IMU) error { imus = append(imus, s); return nil },
		GNSS: func(g *gins.GNSS) error { gnss = append(gnss, g); return nil },
		Odom: func(o gins.Odom) error { odoms = append(odoms, o); return nil },
	})
	test.That(t, err, test.ShouldBeNil)
	return imus, gnss, odoms, r
}

func TestReaderDecodesRecords(t *testing.T) {
	imus, gnss, odoms, r := readAll(t, sampleLog, ReaderOptions{})

	test.That(t, r.BadLines(), test.ShouldEqual, 0)
	test.That(t, imus, test.ShouldHaveLength, 1)
	test.That(t, gnss, test.ShouldHaveLength, 2)
	test.That(t, odoms, test.ShouldHaveLength, 1)

	test.That(t, imus[0].Timestamp, test.ShouldEqual, 0.010)
	test.That(t, imus[0].Gyro, test.ShouldResemble, r3.Vector{X: 0.001, Y: -0.002, Z: 0.0005})
	test.That(t, imus[0].Acc, test.ShouldResemble, r3.Vector{X: 0.01, Y: -0.02, Z: 9.81})

	test.That(t, odoms[0], test.ShouldResemble, gins.Odom{Timestamp: 0.020, LeftPulse: 52, RightPulse: 53})

	g := gnss[0]
	test.That(t, g.UnixTime, test.ShouldEqual, 0.030)
	test.That(t, g.Status, test.ShouldEqual, gins.StatusRTKFixed)
	test.That(t, g.Location.Lat(), test.ShouldEqual, 51.2)
	test.That(t, g.Location.Lng(), test.ShouldEqual, 7.5)
	test.That(t, g.Alt, test.ShouldEqual, 120.5)
	test.That(t, g.Heading, test.ShouldEqual, 88.25)
	test.That(t, g.HeadingValid, test.ShouldBeTrue)
	test.That(t, gnss[1].HeadingValid, test.ShouldBeFalse)
}

func TestReaderDefaultStatusOption(t *testing.T) {
	_, gnss, _, _ := readAll(t, "GNSS 1 51.2 7.5 0 0 1\n",
		ReaderOptions{DefaultGNSSStatus: gins.StatusRTKFloat})
	test.That(t, gnss, test.ShouldHaveLength, 1)
	test.That(t, gnss[0].Status, test.ShouldEqual, gins.StatusRTKFloat)
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	input := "IMU 0.010 0.001\n" + // too few fields
		"LIDAR 0.015 1 2 3\n" + // unknown record
		"IMU x 0 0 0 0 0 9.81\n" + // bad float
		"IMU 0.020 0 0 0 0 0 9.81\n"
	imus, _, _, r := readAll(t, input, ReaderOptions{})
	test.That(t, r.BadLines(), test.ShouldEqual, 3)
	test.That(t, imus, test.ShouldHaveLength, 1)
	test.That(t, imus[0].Timestamp, test.ShouldEqual, 0.020)
}

func TestReaderHandlerErrorAborts(t *testing.T) {
	r := NewReader(strings.NewReader(sampleLog), ReaderOptions{}, golog.NewTestLogger(t))
	count := 0
	err := r.ReadAll(context.Background(), Handlers{
		Odom: func(gins.Odom) error { count++; return context.DeadlineExceeded },
	})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, count, test.ShouldEqual, 1)
}

func TestReaderContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(strings.NewReader(sampleLog), ReaderOptions{}, golog.NewTestLogger(t))
	err := r.ReadAll(ctx, Handlers{})
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestTrajectoryWriter(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTrajectoryWriter(&buf)

	s := eskf.NewNavState(12.5, r3.Vector{Z: -9.81})
	s.Position = r3.Vector{X: 1.5, Y: -2.25, Z: 0.125}
	tw.UpdateNavState(s)
	test.That(t, tw.Close(), test.ShouldBeNil)

	line := strings.TrimRight(buf.String(), "\n")
	test.That(t, line, test.ShouldEqual,
		"12.500000000 1.500000 -2.250000 0.125000 0.000000000 0.000000000 0.000000000 1.000000000")
}

func TestPacer(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 1)
	ctx := context.Background()

	// first timestamp anchors without sleeping
	test.That(t, p.Wait(ctx, 100.0), test.ShouldBeNil)

	done := make(chan error)
	go func() {
		done <- p.Wait(ctx, 100.5)
	}()

	select {
	case err := <-done:
		t.Fatalf("pacer returned before the clock advanced: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	mock.Add(500 * time.Millisecond)
	test.That(t, <-done, test.ShouldBeNil)

	// past timestamps return immediately
	test.That(t, p.Wait(ctx, 100.1), test.ShouldBeNil)
}

func TestPacerSpeed(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 2)
	ctx := context.Background()

	test.That(t, p.Wait(ctx, 0), test.ShouldBeNil)

	done := make(chan error)
	go func() {
		done <- p.Wait(ctx, 1.0)
	}()
	// at double speed one second of sensor time is half a wall second
	select {
	case err := <-done:
		t.Fatalf("pacer returned before the clock advanced: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	mock.Add(500 * time.Millisecond)
	test.That(t, <-done, test.ShouldBeNil)
}

func TestPacerCancel(t *testing.T) {
	mock := clock.NewMock()
	p := NewPacer(mock, 1)
	ctx, cancel := context.WithCancel(context.Background())

	test.That(t, p.Wait(ctx, 0), test.ShouldBeNil)

	done := make(chan error)
	go func() {
		done <- p.Wait(ctx, 10)
	}()
	cancel()
	test.That(t, <-done, test.ShouldBeError, context.Canceled)
}
