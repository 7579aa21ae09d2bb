package eskf

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/rovernav/gins/spatialmath"
	"github.com/rovernav/gins/utils"
)

// Options are the filter tunables. All sigmas are standard deviations.
type Options struct {
	SigmaGyro     float64
	SigmaAcc      float64
	SigmaGyroBias float64
	SigmaAccBias  float64

	InitSigmaPos      float64
	InitSigmaVel      float64
	InitSigmaRot      float64
	InitSigmaGyroBias float64
	InitSigmaAccBias  float64
	InitSigmaGravity  float64

	// MaxDt bounds the integration step; larger gaps are skipped.
	MaxDt float64

	// Iterated-update controls. MaxIter of 1 reduces to a plain ESKF update.
	MaxIter int
	Eps     float64
}

// ErrDiverged is returned by filter operations once a fatal numerical fault
// has latched; the filter will not process further samples.
var ErrDiverged = errors.New("filter diverged")

// Filter is the error-state Kalman filter. It owns the nominal state and the
// 18x18 error covariance; callers only ever see copies. Not safe for
// concurrent use.
type Filter struct {
	opts   Options
	logger golog.Logger

	state NavState
	cov   *mat.Dense // 18x18

	lastT    float64
	hasLastT bool

	nanFault bool
	diverged bool

	// scratch buffers for the predict step; no allocation at steady state
	f    *mat.Dense
	fp   *mat.Dense
	fpft *mat.Dense
}

// NewFilter validates the options and returns an uninitialized filter; Init
// must be called before Predict.
func NewFilter(opts Options, logger golog.Logger) (*Filter, error) {
	for _, v := range []float64{
		opts.SigmaGyro, opts.SigmaAcc, opts.SigmaGyroBias, opts.SigmaAccBias,
		opts.InitSigmaPos, opts.InitSigmaVel, opts.InitSigmaRot,
		opts.InitSigmaGyroBias, opts.InitSigmaAccBias, opts.InitSigmaGravity,
	} {
		if v <= 0 {
			return nil, errors.New("all filter sigmas must be positive")
		}
	}
	if opts.MaxDt <= 0 {
		opts.MaxDt = 0.1
	}
	if opts.MaxIter < 1 {
		opts.MaxIter = 1
	}
	if opts.Eps <= 0 {
		opts.Eps = 1e-6
	}
	return &Filter{
		opts:   opts,
		logger: logger,
		state:  NewNavState(0, r3.Vector{Z: -9.81}),
		cov:    mat.NewDense(StateDim, StateDim, nil),
		f:      mat.NewDense(StateDim, StateDim, nil),
		fp:     mat.NewDense(StateDim, StateDim, nil),
		fpft:   mat.NewDense(StateDim, StateDim, nil),
	}, nil
}

// Init resets the nominal state and rebuilds the covariance from the
// configured initial sigmas. Any divergence latch is cleared.
func (f *Filter) Init(s NavState) {
	f.state = s
	f.state.Rotation = spatialmath.Normalize(f.state.Rotation)
	f.hasLastT = false
	f.nanFault = false
	f.diverged = false

	f.cov.Zero()
	setDiagBlock(f.cov, idxPos, f.opts.InitSigmaPos)
	setDiagBlock(f.cov, idxVel, f.opts.InitSigmaVel)
	setDiagBlock(f.cov, idxTheta, f.opts.InitSigmaRot)
	setDiagBlock(f.cov, idxGyroBias, f.opts.InitSigmaGyroBias)
	setDiagBlock(f.cov, idxAccBias, f.opts.InitSigmaAccBias)
	setDiagBlock(f.cov, idxGravity, f.opts.InitSigmaGravity)
}

func setDiagBlock(m *mat.Dense, off int, sigma float64) {
	for i := off; i < off+3; i++ {
		m.Set(i, i, sigma*sigma)
	}
}

// Predict integrates one IMU sample into the nominal state and propagates
// the covariance. The first sample only records the timestamp.
func (f *Filter) Predict(t float64, gyro, acc r3.Vector) error {
	if f.diverged {
		return ErrDiverged
	}
	if !utils.AllFinite(t, gyro.X, gyro.Y, gyro.Z, acc.X, acc.Y, acc.Z) {
		return errors.New("non-finite imu sample")
	}

	if !f.hasLastT {
		f.lastT = t
		f.hasLastT = true
		f.state.Timestamp = t
		return nil
	}

	dt := t - f.lastT
	f.lastT = t
	if dt <= 0 || dt > f.opts.MaxDt {
		f.logger.Debugw("skipping imu integration step", "dt", dt)
		return nil
	}

	prev := f.state

	gyroU := gyro.Sub(prev.GyroBias)
	accU := acc.Sub(prev.AccBias)
	accNav := spatialmath.Rotate(prev.Rotation, accU).Add(prev.Gravity)

	f.state.Position = prev.Position.
		Add(prev.Velocity.Mul(dt)).
		Add(accNav.Mul(0.5 * dt * dt))
	f.state.Velocity = prev.Velocity.Add(accNav.Mul(dt))
	f.state.Rotation = spatialmath.Normalize(
		quat.Mul(prev.Rotation, spatialmath.Exp(gyroU.Mul(dt))))
	f.state.Timestamp = t

	f.buildTransition(dt, prev.Rotation, accU, gyroU)

	// P <- F P F^T + Q
	f.fp.Mul(f.f, f.cov)
	f.fpft.Mul(f.fp, f.f.T())
	f.cov.Copy(f.fpft)
	f.addProcessNoise(dt)

	if err := f.checkHealth(&prev); err != nil {
		return err
	}
	return nil
}

// buildTransition fills the 18x18 state-transition matrix for the
// right-perturbation error dynamics at the pre-update state.
func (f *Filter) buildTransition(dt float64, rot quat.Number, accU, gyroU r3.Vector) {
	f.f.Zero()
	for i := 0; i < StateDim; i++ {
		f.f.Set(i, i, 1)
	}

	// dp <- dv
	for i := 0; i < 3; i++ {
		f.f.Set(idxPos+i, idxVel+i, dt)
	}

	rm := spatialmath.NewRotationMatrixFromQuat(rot)

	// dv <- dtheta: -R [a]x dt
	ax := spatialmath.Hat(accU)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var v float64
			for k := 0; k < 3; k++ {
				v += rm.At(i, k) * ax.At(k, j)
			}
			f.f.Set(idxVel+i, idxTheta+j, -v*dt)
		}
	}

	// dv <- dba: -R dt
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			f.f.Set(idxVel+i, idxAccBias+j, -rm.At(i, j)*dt)
		}
	}

	// dv <- dg: I dt
	for i := 0; i < 3; i++ {
		f.f.Set(idxVel+i, idxGravity+i, dt)
	}

	// dtheta <- dtheta: Exp(-w dt)
	em := spatialmath.NewRotationMatrixFromQuat(spatialmath.Exp(gyroU.Mul(-dt)))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			f.f.Set(idxTheta+i, idxTheta+j, em.At(i, j))
		}
	}

	// dtheta <- dbg: -I dt
	for i := 0; i < 3; i++ {
		f.f.Set(idxTheta+i, idxGyroBias+i, -dt)
	}
}

func (f *Filter) addProcessNoise(dt float64) {
	addDiag := func(off int, v float64) {
		for i := off; i < off+3; i++ {
			f.cov.Set(i, i, f.cov.At(i, i)+v)
		}
	}
	addDiag(idxVel, f.opts.SigmaAcc*f.opts.SigmaAcc*dt*dt)
	addDiag(idxTheta, f.opts.SigmaGyro*f.opts.SigmaGyro*dt*dt)
	addDiag(idxGyroBias, f.opts.SigmaGyroBias*f.opts.SigmaGyroBias*dt)
	addDiag(idxAccBias, f.opts.SigmaAccBias*f.opts.SigmaAccBias*dt)
}

// NominalState returns a copy of the nominal state.
func (f *Filter) NominalState() NavState {
	return f.state
}

// Covariance returns a copy of the 18x18 error covariance.
func (f *Filter) Covariance() *mat.Dense {
	out := mat.NewDense(StateDim, StateDim, nil)
	out.Copy(f.cov)
	return out
}

// CovarianceTrace returns tr(P), the usual divergence watch quantity.
func (f *Filter) CovarianceTrace() float64 {
	var tr float64
	for i := 0; i < StateDim; i++ {
		tr += f.cov.At(i, i)
	}
	return tr
}

// Diverged reports whether the fatal divergence latch has tripped.
func (f *Filter) Diverged() bool {
	return f.diverged
}

// checkHealth scans state and covariance for NaN. On the first fault it
// restores the previous nominal state, re-symmetrizes and clamps the
// covariance, and drops the step; a fault on the next step latches
// divergence.
func (f *Filter) checkHealth(restore *NavState) error {
	if f.stateFinite() && matFinite(f.cov) {
		f.nanFault = false
		return nil
	}
	if f.nanFault {
		f.diverged = true
		f.logger.Errorw("repeated numerical fault, filter diverged")
		return ErrDiverged
	}
	f.nanFault = true
	f.logger.Warnw("numerical fault detected, dropping step and repairing covariance")
	if restore != nil {
		f.state = *restore
	}
	f.repairCovariance()
	return errors.New("numerical fault")
}

func (f *Filter) stateFinite() bool {
	s := &f.state
	return utils.AllFinite(
		s.Rotation.Real, s.Rotation.Imag, s.Rotation.Jmag, s.Rotation.Kmag,
		s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z,
		s.GyroBias.X, s.GyroBias.Y, s.GyroBias.Z,
		s.AccBias.X, s.AccBias.Y, s.AccBias.Z,
		s.Gravity.X, s.Gravity.Y, s.Gravity.Z,
	)
}

func matFinite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// repairCovariance replaces P with its nearest symmetric PSD approximation:
// P <- 0.5 (P + P^T) with NaN entries zeroed, then negative eigenvalues
// clamped to zero.
func (f *Filter) repairCovariance() {
	sym := mat.NewSymDense(StateDim, nil)
	for i := 0; i < StateDim; i++ {
		for j := i; j < StateDim; j++ {
			v := 0.5 * (f.cov.At(i, j) + f.cov.At(j, i))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			sym.SetSym(i, j, v)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		// fall back to the symmetrized matrix
		f.cov.Copy(sym)
		return
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
		}
	}
	var vd, out mat.Dense
	vd.Mul(&vecs, mat.NewDiagDense(StateDim, vals))
	out.Mul(&vd, vecs.T())
	f.cov.Copy(&out)
}

// symmetrize enforces P = 0.5 (P + P^T) in place.
func (f *Filter) symmetrize() {
	for i := 0; i < StateDim; i++ {
		for j := i + 1; j < StateDim; j++ {
			v := 0.5 * (f.cov.At(i, j) + f.cov.At(j, i))
			f.cov.Set(i, j, v)
			f.cov.Set(j, i, v)
		}
	}
}
