package fusion

import (
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	gins "github.com/rovernav/gins"
	"github.com/rovernav/gins/eskf"
	"github.com/rovernav/gins/spatialmath"
)

// ErrDiverged is returned once the filter has entered the fatal divergence
// state; no further samples are processed.
var ErrDiverged = errors.New("navigation filter diverged")

// Stats counts what the driver has seen and dropped.
type Stats struct {
	IMUSamples   int
	GNSSReadings int
	OdomReadings int

	DroppedGNSS int
	DroppedOdom int
	Warnings    int
}

// Fusion is the single-threaded sensor fusion driver. All Process methods
// must be called from one goroutine, in stream arrival order.
type Fusion struct {
	cfg    gins.Config
	logger golog.Logger

	filter *eskf.Filter
	init   *staticInitializer
	sinks  []Sink

	initialized bool
	diverged    bool
	stopped     atomic.Bool

	antennaPos r3.Vector

	origin        r3.Vector
	originLatched bool
	utmZone       int
	zoneLatched   bool

	lastIMUTime float64
	hasIMUTime  bool

	// sliding window for static (ZUPT) detection
	recent []gins.IMU

	wheels      gins.WheelGeometry
	lastOdomT   float64
	hasLastOdom bool

	// first prepared GNSS seen before alignment completes, used to seed the
	// initial position and yaw
	preInitGNSS *gins.GNSS

	stats Stats
}

// New validates the config and assembles a driver. Sinks receive snapshots
// inline on the fusion thread and must not block.
func New(cfg gins.Config, logger golog.Logger, sinks ...Sink) (*Fusion, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}

	filter, err := eskf.NewFilter(eskf.Options{
		SigmaGyro:         cfg.SigmaGyro,
		SigmaAcc:          cfg.SigmaAcc,
		SigmaGyroBias:     cfg.SigmaGyroBias,
		SigmaAccBias:      cfg.SigmaAccBias,
		InitSigmaPos:      cfg.InitSigmaPos,
		InitSigmaVel:      cfg.InitSigmaVel,
		InitSigmaRot:      cfg.InitSigmaRot,
		InitSigmaGyroBias: cfg.InitSigmaGyroBias,
		InitSigmaAccBias:  cfg.InitSigmaAccBias,
		InitSigmaGravity:  cfg.InitSigmaGravity,
		MaxDt:             cfg.MaxIMUDt,
		MaxIter:           cfg.IEKFMaxIter,
		Eps:               cfg.IEKFEps,
	}, logger)
	if err != nil {
		return nil, err
	}

	f := &Fusion{
		cfg:        cfg,
		logger:     logger,
		filter:     filter,
		init:       newStaticInitializer(cfg),
		sinks:      sinks,
		antennaPos: r3.Vector{X: cfg.AntennaPosX, Y: cfg.AntennaPosY},
		wheels:     gins.WheelGeometry{Radius: cfg.WheelRadius, PulsesPerRev: cfg.PulsesPerRev},
	}
	if cfg.MapOrigin != nil {
		f.origin = r3.Vector{X: cfg.MapOrigin.X, Y: cfg.MapOrigin.Y, Z: cfg.MapOrigin.Z}
		f.originLatched = true
	}
	return f, nil
}

// Initialized reports whether the initial alignment has completed.
func (f *Fusion) Initialized() bool {
	return f.initialized
}

// Diverged reports whether the filter has entered the fatal state.
func (f *Fusion) Diverged() bool {
	return f.diverged
}

// NavState returns a copy of the current nominal state.
func (f *Fusion) NavState() eskf.NavState {
	return f.filter.NominalState()
}

// Stats returns the driver counters.
func (f *Fusion) Stats() Stats {
	return f.stats
}

// ProcessIMU feeds one inertial sample: before alignment it accumulates into
// the static initializer, afterwards it drives a predict step (and a ZUPT
// when the recent window is static).
func (f *Fusion) ProcessIMU(s gins.IMU) error {
	if f.diverged {
		return ErrDiverged
	}
	f.stats.IMUSamples++
	f.lastIMUTime = s.Timestamp
	f.hasIMUTime = true

	if !f.initialized {
		res, err := f.init.add(s)
		if err != nil {
			return errors.Wrap(err, "initial alignment")
		}
		if res != nil {
			f.startFilter(*res)
		}
		return nil
	}

	if err := f.filter.Predict(s.Timestamp, s.Gyro, s.Acc); err != nil {
		if errors.Is(err, eskf.ErrDiverged) {
			f.diverged = true
			return ErrDiverged
		}
		f.stats.Warnings++
		f.logger.Debugw("imu sample dropped", "error", err)
		return nil
	}

	if f.cfg.WithZUPT {
		f.pushRecent(s)
		if f.windowStatic() {
			if err := f.filter.ObserveZeroVelocity(f.cfg.SigmaZUPT); err != nil {
				f.stats.Warnings++
				f.logger.Debugw("zupt rejected", "error", err)
			}
		}
	}

	if err := f.watchDivergence(); err != nil {
		return err
	}
	f.publishNavState()
	return nil
}

// ProcessGNSS prepares one GNSS reading and applies the pose observation.
// Dropped readings (no fix, projection failure, stale timestamp, zone change)
// are counted, not fatal.
func (f *Fusion) ProcessGNSS(g *gins.GNSS) error {
	if f.diverged {
		return ErrDiverged
	}
	f.stats.GNSSReadings++

	if g == nil || g.Status == gins.StatusNoFix {
		f.stats.DroppedGNSS++
		return nil
	}
	if f.initialized && f.hasIMUTime && g.UnixTime < f.lastIMUTime-f.cfg.MaxBacktrack {
		f.stats.DroppedGNSS++
		f.logger.Debugw("dropping stale gnss reading",
			"gnss_time", g.UnixTime, "filter_time", f.lastIMUTime)
		return nil
	}

	if err := gins.PrepareGNSS(g, f.antennaPos, f.cfg.AntennaAngleDeg, f.origin); err != nil {
		f.stats.DroppedGNSS++
		f.stats.Warnings++
		f.logger.Debugw("gnss reading rejected", "error", err)
		return nil
	}

	if !f.zoneLatched {
		f.utmZone = g.UTM.Zone
		f.zoneLatched = true
	} else if g.UTM.Zone != f.utmZone {
		f.stats.DroppedGNSS++
		f.logger.Warnw("gnss reading crossed utm zones, dropping",
			"zone", g.UTM.Zone, "expected", f.utmZone)
		return nil
	}

	if !f.originLatched {
		// latch the local-frame origin at the first fix and re-anchor the
		// prepared pose against it
		f.origin = f.origin.Add(g.Pose.Point())
		f.originLatched = true
		g.Pose = spatialmath.NewPose(r3.Vector{}, g.Pose.Rotation())
		f.logger.Infow("latched map origin", "easting", f.origin.X, "northing", f.origin.Y,
			"alt", f.origin.Z, "zone", f.utmZone)
	}

	f.publishGPSPose(g.Pose)

	if !f.initialized {
		f.preInitGNSS = g
		return nil
	}

	if err := f.filter.ObservePose(g.Pose, f.cfg.SigmaGNSSPos, f.cfg.SigmaGNSSHeading, g.HeadingValid); err != nil {
		if errors.Is(err, eskf.ErrDiverged) {
			f.diverged = true
			return ErrDiverged
		}
		f.stats.Warnings++
		f.logger.Debugw("gnss update rejected", "error", err)
		return nil
	}

	if err := f.watchDivergence(); err != nil {
		return err
	}
	f.publishNavState()
	return nil
}

// ProcessOdom converts a wheel-encoder reading to a body speed and applies
// the velocity observation. Requires WithOdom.
func (f *Fusion) ProcessOdom(o gins.Odom) error {
	if f.diverged {
		return ErrDiverged
	}
	f.stats.OdomReadings++

	if !f.cfg.WithOdom || !f.initialized {
		return nil
	}

	if !f.hasLastOdom {
		f.lastOdomT = o.Timestamp
		f.hasLastOdom = true
		return nil
	}
	dt := o.Timestamp - f.lastOdomT
	f.lastOdomT = o.Timestamp
	if dt <= 0 {
		f.stats.DroppedOdom++
		f.stats.Warnings++
		f.logger.Debugw("odom reading with non-positive interval dropped", "dt", dt)
		return nil
	}

	speed := f.wheels.Speed(o, dt)
	if f.cfg.OdomSpeedCap > 0 && (speed > f.cfg.OdomSpeedCap || speed < -f.cfg.OdomSpeedCap) {
		f.stats.DroppedOdom++
		f.logger.Debugw("odom speed over cap, dropped", "speed", speed)
		return nil
	}

	if err := f.filter.ObserveWheelSpeed(speed, f.cfg.SigmaOdomVel); err != nil {
		if errors.Is(err, eskf.ErrDiverged) {
			f.diverged = true
			return ErrDiverged
		}
		f.stats.Warnings++
		f.logger.Debugw("odom update rejected", "error", err)
		return nil
	}

	if err := f.watchDivergence(); err != nil {
		return err
	}
	f.publishNavState()
	return nil
}

// startFilter seeds the filter from the alignment result and, when a GNSS
// reading arrived during alignment, from its position and heading.
func (f *Fusion) startFilter(res InitResult) {
	state := eskf.NewNavState(res.Timestamp, res.GravityNav)
	state.Rotation = res.Rotation
	state.GyroBias = res.GyroBias

	if g := f.preInitGNSS; g != nil && g.UTMValid {
		state.Position = g.Pose.Point()
		if g.HeadingValid {
			// keep the gravity-derived tilt, take yaw from the dual antennas
			tilt := quat.Mul(spatialmath.QuatFromYaw(-spatialmath.Yaw(res.Rotation)), res.Rotation)
			state.Rotation = spatialmath.Normalize(
				quat.Mul(spatialmath.QuatFromYaw(spatialmath.Yaw(g.Pose.Rotation())), tilt))
		}
	}

	f.filter.Init(state)
	f.initialized = true
	f.logger.Infow("initial alignment complete",
		"t", res.Timestamp,
		"gyro_bias", res.GyroBias,
		"gravity", res.GravityNav.Z)
	f.publishNavState()
}

func (f *Fusion) pushRecent(s gins.IMU) {
	f.recent = append(f.recent, s)
	if len(f.recent) > f.cfg.StaticWindow {
		f.recent = f.recent[1:]
	}
}

// windowStatic reports whether the last StaticWindow IMU samples look
// motionless: small angular rates and accelerometer spread.
func (f *Fusion) windowStatic() bool {
	if len(f.recent) < f.cfg.StaticWindow {
		return false
	}
	meanAcc, _ := meanAndVarDiag(f.recent, func(s gins.IMU) r3.Vector { return s.Acc })
	for _, s := range f.recent {
		if s.Gyro.Norm() >= f.cfg.StaticGyroThresh {
			return false
		}
		if s.Acc.Sub(meanAcc).Norm() >= f.cfg.StaticAccThresh {
			return false
		}
	}
	return true
}

func (f *Fusion) watchDivergence() error {
	if f.filter.Diverged() {
		f.diverged = true
		return ErrDiverged
	}
	if tr := f.filter.CovarianceTrace(); f.cfg.DivergenceTrace > 0 && tr > f.cfg.DivergenceTrace {
		f.diverged = true
		f.logger.Errorw("covariance trace over threshold, filter diverged", "trace", tr)
		return ErrDiverged
	}
	return nil
}

func (f *Fusion) publishNavState() {
	s := f.filter.NominalState()
	for _, sink := range f.sinks {
		sink.UpdateNavState(s)
	}
}

func (f *Fusion) publishGPSPose(p spatialmath.Pose) {
	for _, sink := range f.sinks {
		sink.UpdateGPSPose(p)
	}
}
