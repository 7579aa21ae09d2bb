package eskf

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/rovernav/gins/spatialmath"
	"github.com/rovernav/gins/utils"
)

// observation is one linearized measurement: eval returns the innovation and
// the measurement Jacobian H at the given nominal state, so the iterated
// update can re-linearize after each injection.
type observation struct {
	dim   int
	eval  func(s *NavState) (resid *mat.VecDense, jac *mat.Dense)
	noise *mat.Dense
}

// ObservePose applies an SE(3)-like GNSS observation. The rotation part is
// used only when withRotation is set; otherwise the update is position-only.
func (f *Filter) ObservePose(pose spatialmath.Pose, posSigma, rotSigma float64, withRotation bool) error {
	if posSigma <= 0 || (withRotation && rotSigma <= 0) {
		return errors.New("observation sigmas must be positive")
	}
	p := pose.Point()
	if !utils.AllFinite(p.X, p.Y, p.Z) {
		return errors.New("non-finite pose observation")
	}

	dim := 3
	if withRotation {
		dim = 6
	}
	noise := mat.NewDense(dim, dim, nil)
	for i := 0; i < 3; i++ {
		noise.Set(i, i, posSigma*posSigma)
	}
	if withRotation {
		for i := 3; i < 6; i++ {
			noise.Set(i, i, rotSigma*rotSigma)
		}
	}

	obs := observation{
		dim:   dim,
		noise: noise,
		eval: func(s *NavState) (*mat.VecDense, *mat.Dense) {
			r := mat.NewVecDense(dim, nil)
			h := mat.NewDense(dim, StateDim, nil)

			rp := p.Sub(s.Position)
			r.SetVec(0, rp.X)
			r.SetVec(1, rp.Y)
			r.SetVec(2, rp.Z)
			for i := 0; i < 3; i++ {
				h.Set(i, idxPos+i, 1)
			}

			if withRotation {
				rt := spatialmath.Log(quat.Mul(quat.Conj(s.Rotation), pose.Rotation()))
				r.SetVec(3, rt.X)
				r.SetVec(4, rt.Y)
				r.SetVec(5, rt.Z)
				for i := 0; i < 3; i++ {
					h.Set(3+i, idxTheta+i, 1)
				}
			}
			return r, h
		},
	}
	return f.update(obs)
}

// ObserveWheelSpeed applies a body-frame longitudinal speed measurement from
// wheel odometry, expressed in the navigation frame: the innovation is
// R (speed, 0, 0) - v.
func (f *Filter) ObserveWheelSpeed(speed, sigma float64) error {
	if sigma <= 0 {
		return errors.New("observation sigmas must be positive")
	}
	if !utils.AllFinite(speed) {
		return errors.New("non-finite speed observation")
	}
	return f.update(f.velocityObservation(speed, sigma))
}

// ObserveZeroVelocity applies a ZUPT pseudo-measurement asserting v = 0.
func (f *Filter) ObserveZeroVelocity(sigma float64) error {
	if sigma <= 0 {
		return errors.New("observation sigmas must be positive")
	}
	return f.update(f.velocityObservation(0, sigma))
}

// velocityObservation builds the shared nav-frame velocity measurement. The
// ZUPT is the speed-zero case, for which the rotation coupling vanishes.
func (f *Filter) velocityObservation(speed, sigma float64) observation {
	noise := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		noise.Set(i, i, sigma*sigma)
	}
	return observation{
		dim:   3,
		noise: noise,
		eval: func(s *NavState) (*mat.VecDense, *mat.Dense) {
			body := r3.Vector{X: speed}
			expected := spatialmath.Rotate(s.Rotation, body)

			r := mat.NewVecDense(3, nil)
			rv := expected.Sub(s.Velocity)
			r.SetVec(0, rv.X)
			r.SetVec(1, rv.Y)
			r.SetVec(2, rv.Z)

			h := mat.NewDense(3, StateDim, nil)
			for i := 0; i < 3; i++ {
				h.Set(i, idxVel+i, 1)
			}
			// innovation linearization in dtheta: R [body]x
			rm := spatialmath.NewRotationMatrixFromQuat(s.Rotation)
			bx := spatialmath.Hat(body)
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					var v float64
					for k := 0; k < 3; k++ {
						v += rm.At(i, k) * bx.At(k, j)
					}
					h.Set(i, idxTheta+j, v)
				}
			}
			return r, h
		},
	}
}

// update runs the (possibly iterated) Kalman update: gain, injection, Joseph
// covariance update, and the rotation-block covariance reset.
func (f *Filter) update(o observation) error {
	if f.diverged {
		return ErrDiverged
	}

	var (
		gain  mat.Dense
		jac   *mat.Dense
		total = make([]float64, StateDim)
	)

	for iter := 0; iter < f.opts.MaxIter; iter++ {
		resid, h := o.eval(&f.state)

		if iter == 0 && mat.Norm(resid, 2) == 0 {
			// nothing to correct; leave state and covariance untouched
			return nil
		}

		// S = H P H^T + V
		var pht mat.Dense
		pht.Mul(f.cov, h.T())
		var s mat.Dense
		s.Mul(h, &pht)
		s.Add(&s, o.noise)

		var sInv mat.Dense
		if err := sInv.Inverse(&s); err != nil {
			f.repairCovariance()
			return errors.Wrap(err, "singular innovation covariance")
		}

		gain.Mul(&pht, &sInv)

		// Iterated form: the new total correction is computed against the
		// pre-update linearization point, K (r + H dx_total), so iterating
		// does not over-correct past the Kalman optimum.
		adj := mat.NewVecDense(o.dim, nil)
		adj.MulVec(h, mat.NewVecDense(StateDim, total))
		adj.AddVec(adj, resid)

		var newTotalVec mat.VecDense
		newTotalVec.MulVec(&gain, adj)
		newTotal := make([]float64, StateDim)
		copy(newTotal, newTotalVec.RawVector().Data)
		if !utils.AllFinite(newTotal...) {
			f.repairCovariance()
			return errors.New("non-finite kalman correction")
		}

		step := make([]float64, StateDim)
		for i := range step {
			step[i] = newTotal[i] - total[i]
		}
		f.state.ComposeRight(step)
		total = newTotal
		jac = h

		if normOf(step) < f.opts.Eps {
			break
		}
	}

	// Joseph form: P <- (I - K H) P (I - K H)^T + K V K^T
	var kh mat.Dense
	kh.Mul(&gain, jac)
	ikh := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		ikh.Set(i, i, 1)
	}
	ikh.Sub(ikh, &kh)

	var t1, newP mat.Dense
	t1.Mul(ikh, f.cov)
	newP.Mul(&t1, ikh.T())

	var kv, kvk mat.Dense
	kv.Mul(&gain, o.noise)
	kvk.Mul(&kv, gain.T())
	newP.Add(&newP, &kvk)
	f.cov.Copy(&newP)

	f.resetThetaCov(r3.Vector{X: total[idxTheta], Y: total[idxTheta+1], Z: total[idxTheta+2]})
	f.symmetrize()

	return f.checkHealth(nil)
}

// resetThetaCov re-anchors the rotation block of the covariance after an
// injection: P <- G P G^T with G = I except the theta block, which is
// I - 0.5 [dtheta]x.
func (f *Filter) resetThetaCov(dtheta r3.Vector) {
	g := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		g.Set(i, i, 1)
	}
	hx := spatialmath.Hat(dtheta)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := -0.5 * hx.At(i, j)
			if i == j {
				v++
			}
			g.Set(idxTheta+i, idxTheta+j, v)
		}
	}

	var gp, out mat.Dense
	gp.Mul(g, f.cov)
	out.Mul(&gp, g.T())
	f.cov.Copy(&out)
}

func normOf(dx []float64) float64 {
	var sum float64
	for _, v := range dx {
		sum += v * v
	}
	return math.Sqrt(sum)
}
