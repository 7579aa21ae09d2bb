// Command gins replays a text sensor log through the loosely coupled
// GNSS/IMU/odometry fusion filter and writes the estimated trajectory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	gins "github.com/rovernav/gins"
	"github.com/rovernav/gins/fusion"
	"github.com/rovernav/gins/textio"
)

// Exit codes.
const (
	exitOK       = 0
	exitIO       = 1
	exitConfig   = 2
	exitDiverged = 3
)

var (
	inputPath  = flag.String("input", "", "sensor log to replay (required)")
	outputPath = flag.String("output", "", "trajectory output file (default stdout)")
	configPath = flag.String("config", "", "JSON config file (default built-in tuning)")
	realtime   = flag.Bool("realtime", false, "pace the replay at sensor-timestamp rate")
	speed      = flag.Float64("speed", 1, "replay speed factor when -realtime is set")
	debug      = flag.Bool("debug", false, "enable debug logging")
)

func newLogger() golog.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if *debug {
		cfg.Level.SetLevel(zap.DebugLevel)
	}
	base, err := cfg.Build()
	if err != nil {
		return golog.NewDevelopmentLogger("gins")
	}
	return base.Sugar().Named("gins")
}

func main() {
	os.Exit(realMain())
}

func realMain() int {
	flag.Parse()
	logger := newLogger()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: gins -input <sensor log> [-output <trajectory>] [-config <json>]")
		flag.PrintDefaults()
		return exitConfig
	}

	cfg := gins.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gins.LoadConfig(*configPath); err != nil {
			logger.Errorw("invalid config", "path", *configPath, "error", err)
			return exitConfig
		}
	}

	in, err := os.Open(*inputPath)
	if err != nil {
		logger.Errorw("cannot open sensor log", "path", *inputPath, "error", err)
		return exitIO
	}

	var out io.Writer = os.Stdout
	if *outputPath != "" {
		file, err := os.Create(*outputPath)
		if err != nil {
			logger.Errorw("cannot create trajectory file", "path", *outputPath, "error", err)
			return exitIO
		}
		out = file
	}
	tw := textio.NewTrajectoryWriter(out)

	f, err := fusion.New(cfg, logger, tw)
	if err != nil {
		logger.Errorw("invalid config", "error", err)
		return exitConfig
	}

	var pacer fusion.Pacer
	if *realtime {
		pacer = textio.NewPacer(clock.New(), *speed)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := textio.NewReader(in, textio.ReaderOptions{}, logger)
	runErr := f.Run(ctx, reader, pacer)
	closeErr := multierr.Combine(tw.Close(), in.Close())

	if runErr != nil {
		if errors.Is(runErr, fusion.ErrDiverged) {
			logger.Errorw("filter diverged, aborting replay", "error", runErr)
			return exitDiverged
		}
		logger.Errorw("replay failed", "error", runErr)
		return exitIO
	}
	if closeErr != nil {
		logger.Errorw("closing streams", "error", closeErr)
		return exitIO
	}

	stats := f.Stats()
	logger.Infow("replay finished",
		"imu_samples", stats.IMUSamples,
		"gnss_readings", stats.GNSSReadings,
		"odom_readings", stats.OdomReadings,
		"dropped_gnss", stats.DroppedGNSS,
		"dropped_odom", stats.DroppedOdom,
		"warnings", stats.Warnings,
		"bad_lines", reader.BadLines(),
	)
	return exitOK
}
