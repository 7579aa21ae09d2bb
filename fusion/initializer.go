package fusion

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	gins "github.com/rovernav/gins"
	"github.com/rovernav/gins/spatialmath"
)

// InitResult is the outcome of the static initial alignment.
type InitResult struct {
	Timestamp  float64
	Rotation   quat.Number // body-to-nav attitude
	GyroBias   r3.Vector
	GravityNav r3.Vector // (0, 0, -|g|)
}

// staticInitializer accumulates IMU samples until a static window of the
// configured length passes the variance gate, then estimates gyro bias,
// gravity, and initial attitude.
type staticInitializer struct {
	need          int
	gyroVarMax    float64
	accVarMax     float64
	assumeStatic  bool
	timeout       float64
	allowIdentity bool

	samples []gins.IMU
	firstT  float64
	hasT    bool
}

func newStaticInitializer(cfg gins.Config) *staticInitializer {
	return &staticInitializer{
		need:          cfg.InitSamples,
		gyroVarMax:    cfg.InitGyroVarMax,
		accVarMax:     cfg.InitAccVarMax,
		assumeStatic:  cfg.AssumeStaticInit,
		timeout:       cfg.InitTimeout,
		allowIdentity: cfg.AllowIdentityInit,
		samples:       make([]gins.IMU, 0, cfg.InitSamples),
	}
}

// errInitTimeout reports that no static window was found within the horizon.
var errInitTimeout = errors.New("no static window found within the initialization horizon")

// add pushes one IMU sample. It returns a result once alignment succeeds, and
// an error once the horizon is exhausted without a usable window.
func (si *staticInitializer) add(s gins.IMU) (*InitResult, error) {
	if !si.hasT {
		si.firstT = s.Timestamp
		si.hasT = true
	}

	si.samples = append(si.samples, s)
	if len(si.samples) > si.need {
		si.samples = si.samples[1:]
	}
	if len(si.samples) < si.need {
		return nil, nil
	}

	if si.assumeStatic || si.windowStatic() {
		res := si.estimate()
		return &res, nil
	}

	if si.timeout > 0 && s.Timestamp-si.firstT > si.timeout {
		if si.allowIdentity {
			res := si.estimateIdentity(s.Timestamp)
			return &res, nil
		}
		return nil, errInitTimeout
	}
	return nil, nil
}

func (si *staticInitializer) windowStatic() bool {
	_, gyroVar := meanAndVarDiag(si.samples, func(s gins.IMU) r3.Vector { return s.Gyro })
	_, accVar := meanAndVarDiag(si.samples, func(s gins.IMU) r3.Vector { return s.Acc })
	return maxComponent(gyroVar) < si.gyroVarMax && maxComponent(accVar) < si.accVarMax
}

func (si *staticInitializer) estimate() InitResult {
	meanGyro, _ := meanAndVarDiag(si.samples, func(s gins.IMU) r3.Vector { return s.Gyro })
	meanAcc, _ := meanAndVarDiag(si.samples, func(s gins.IMU) r3.Vector { return s.Acc })

	// gravity magnitude from the mean specific-force norm
	var gNorm float64
	for _, s := range si.samples {
		gNorm += s.Acc.Norm()
	}
	gNorm /= float64(len(si.samples))

	// attitude aligns the mean specific force with +z in the nav frame
	rot := spatialmath.QuatBetweenVectors(meanAcc, r3.Vector{Z: 1})

	return InitResult{
		Timestamp:  si.samples[len(si.samples)-1].Timestamp,
		Rotation:   rot,
		GyroBias:   meanGyro,
		GravityNav: r3.Vector{Z: -gNorm},
	}
}

func (si *staticInitializer) estimateIdentity(t float64) InitResult {
	return InitResult{
		Timestamp:  t,
		Rotation:   spatialmath.NewZeroRotation(),
		GravityNav: r3.Vector{Z: -9.81},
	}
}

// meanAndVarDiag computes the per-axis mean and sample variance of a vector
// field over the window.
func meanAndVarDiag(samples []gins.IMU, get func(gins.IMU) r3.Vector) (r3.Vector, r3.Vector) {
	n := float64(len(samples))
	var mean r3.Vector
	for _, s := range samples {
		mean = mean.Add(get(s))
	}
	mean = mean.Mul(1 / n)

	var varDiag r3.Vector
	for _, s := range samples {
		d := get(s).Sub(mean)
		varDiag = varDiag.Add(r3.Vector{X: d.X * d.X, Y: d.Y * d.Y, Z: d.Z * d.Z})
	}
	if n > 1 {
		varDiag = varDiag.Mul(1 / (n - 1))
	}
	return mean, varDiag
}

func maxComponent(v r3.Vector) float64 {
	m := v.X
	if v.Y > m {
		m = v.Y
	}
	if v.Z > m {
		m = v.Z
	}
	return m
}
