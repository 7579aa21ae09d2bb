// Package textio reads and writes the line-oriented text formats of the
// navigation pipeline: the IMU/ODOM/GNSS sensor log on the way in and a
// TUM-style trajectory on the way out.
package textio

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"

	gins "github.com/rovernav/gins"
)

func r3Vec(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Handlers receives decoded records in file order. Nil handlers skip their
// record type. A handler error aborts the read.
type Handlers struct {
	IMU  func(s gins.IMU) error
	GNSS func(g *gins.GNSS) error
	Odom func(o gins.Odom) error
}

// ReaderOptions tune record decoding.
type ReaderOptions struct {
	// DefaultGNSSStatus is assigned to GNSS records, which carry no status
	// field in the text format. Zero means StatusRTKFixed.
	DefaultGNSSStatus gins.GPSStatus
}

// Reader scans a sensor log. Malformed lines are counted and skipped.
type Reader struct {
	scanner *bufio.Scanner
	opts    ReaderOptions
	logger  golog.Logger

	badLines int
}

// NewReader wraps an input stream.
func NewReader(r io.Reader, opts ReaderOptions, logger golog.Logger) *Reader {
	if opts.DefaultGNSSStatus == gins.StatusNoFix {
		opts.DefaultGNSSStatus = gins.StatusRTKFixed
	}
	return &Reader{
		scanner: bufio.NewScanner(r),
		opts:    opts,
		logger:  logger,
	}
}

// BadLines returns how many lines failed to decode so far.
func (r *Reader) BadLines() int {
	return r.badLines
}

// ReadAll consumes the stream to EOF, dispatching each record. The context
// is checked between lines; cancellation discards pending records.
func (r *Reader) ReadAll(ctx context.Context, h Handlers) error {
	lineNo := 0
	for r.scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := r.dispatchLine(line, h); err != nil {
			var bad badLineError
			if errors.As(err, &bad) {
				r.badLines++
				r.logger.Debugw("skipping malformed line", "line", lineNo, "error", err)
				continue
			}
			return errors.Wrapf(err, "line %d", lineNo)
		}
	}
	return errors.Wrap(r.scanner.Err(), "reading sensor log")
}

// badLineError marks decode failures that should be skipped, as opposed to
// handler errors that must abort.
type badLineError struct{ err error }

func (e badLineError) Error() string { return e.err.Error() }
func (e badLineError) Unwrap() error { return e.err }

func (r *Reader) dispatchLine(line string, h Handlers) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "IMU":
		s, err := parseIMU(fields)
		if err != nil {
			return badLineError{err}
		}
		if h.IMU != nil {
			return h.IMU(s)
		}
	case "ODOM":
		o, err := parseOdom(fields)
		if err != nil {
			return badLineError{err}
		}
		if h.Odom != nil {
			return h.Odom(o)
		}
	case "GNSS":
		g, err := parseGNSS(fields, r.opts.DefaultGNSSStatus)
		if err != nil {
			return badLineError{err}
		}
		if h.GNSS != nil {
			return h.GNSS(g)
		}
	default:
		return badLineError{errors.Errorf("unknown record type %q", fields[0])}
	}
	return nil
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) != n+1 {
		return nil, errors.Errorf("expected %d fields, got %d", n+1, len(fields))
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d", i+1)
		}
		vals[i] = v
	}
	return vals, nil
}

func parseIMU(fields []string) (gins.IMU, error) {
	v, err := parseFloats(fields, 7)
	if err != nil {
		return gins.IMU{}, err
	}
	return gins.IMU{
		Timestamp: v[0],
		Gyro:      r3Vec(v[1], v[2], v[3]),
		Acc:       r3Vec(v[4], v[5], v[6]),
	}, nil
}

func parseOdom(fields []string) (gins.Odom, error) {
	v, err := parseFloats(fields, 3)
	if err != nil {
		return gins.Odom{}, err
	}
	return gins.Odom{Timestamp: v[0], LeftPulse: v[1], RightPulse: v[2]}, nil
}

func parseGNSS(fields []string, status gins.GPSStatus) (*gins.GNSS, error) {
	v, err := parseFloats(fields, 6)
	if err != nil {
		return nil, err
	}
	headingValid := v[5] != 0
	return gins.NewGNSS(v[0], int(status), geo.NewPoint(v[1], v[2]), v[3], v[4], headingValid), nil
}
