// Package optim implements the Adam optimizer with the per-parameter
// learning-rate multipliers and exponential decay schedules C5 needs:
// means, scales, rotations, opacities, and SH coefficients each train at a
// different effective rate.
package optim

import "math"

// Param identifies one of the splat parameter groups Adam tracks separate
// moment estimates and learning rates for.
type Param int

const (
	ParamMeans Param = iota
	ParamLogScales
	ParamRotations
	ParamLogitOpacities
	ParamSH
	numParams
)

// LRSchedule computes the learning rate for a parameter group at a given
// training step, allowing exponential decay from an initial to a final
// rate over a horizon (spec.md §6.3's per-parameter LR fields).
type LRSchedule struct {
	Initial float64
	Final   float64
	// DecaySteps is the step count over which Initial decays to Final;
	// steps beyond DecaySteps hold at Final.
	DecaySteps int
}

// At returns the learning rate for the given step.
func (s LRSchedule) At(step int) float64 {
	if s.DecaySteps <= 0 || s.Final == s.Initial {
		return s.Initial
	}
	t := float64(step) / float64(s.DecaySteps)
	if t > 1 {
		t = 1
	}
	// Log-linear interpolation, matching original_source's train crate's
	// "exponential" LR decay (constant percentage decay per step).
	logLerp := math.Log(s.Initial)*(1-t) + math.Log(s.Final)*t
	return math.Exp(logLerp)
}

// Config holds one LRSchedule per parameter group plus Adam's moment decay
// rates.
type Config struct {
	Schedules    [numParams]LRSchedule
	Beta1, Beta2 float64
	Eps          float64
}

// DefaultConfig returns the learning rates original_source's train crate
// uses by default: means start lowest (1.6e-4, decaying log-linearly to
// 1.6e-6 over 30000 steps), opacities highest (5e-2); the other groups hold
// a constant rate.
func DefaultConfig() Config {
	return Config{
		Schedules: [numParams]LRSchedule{
			ParamMeans:          {Initial: 1.6e-4, Final: 1.6e-6, DecaySteps: 30000},
			ParamLogScales:      {Initial: 5e-3},
			ParamRotations:      {Initial: 1e-3},
			ParamLogitOpacities: {Initial: 5e-2},
			ParamSH:             {Initial: 2.5e-3},
		},
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-15,
	}
}

// moments holds the first and second moment estimates for one flat
// parameter array (e.g. all splats' mean.x values concatenated).
type moments struct {
	m, v []float32
}

// Adam is a per-parameter-group Adam optimizer state. Each group's
// parameter array may grow or shrink between steps (refine.Step),
// so Resize must be called whenever the splat count changes.
type Adam struct {
	cfg  Config
	step int
	mom  map[Param]*moments
}

// New creates an Adam optimizer with the given config and zero-length
// moment buffers; call Resize once the parameter sizes are known.
func New(cfg Config) *Adam {
	return &Adam{cfg: cfg, mom: make(map[Param]*moments, numParams)}
}

// Step returns the current (post-increment) step count.
func (a *Adam) Step() int { return a.step }

// FastForward advances the step counter without applying an update, used
// to resume a run at PipelineConfig.StartIter so LR decay and Adam's
// bias-correction terms pick up where a prior run left off.
func (a *Adam) FastForward(step int) { a.step = step }

// Resize grows or shrinks a parameter group's moment buffers to length n,
// zero-filling new entries (new splats from densification start with no
// momentum) and truncating by the caller-supplied keep indices when n
// shrinks (pruning): pass the same indices used by splat.Splats.Keep.
func (a *Adam) Resize(p Param, n int, keep []int) {
	cur, ok := a.mom[p]
	if !ok {
		a.mom[p] = &moments{m: make([]float32, n), v: make([]float32, n)}
		return
	}
	if keep != nil {
		m := make([]float32, len(keep))
		v := make([]float32, len(keep))
		for dst, src := range keep {
			if src < len(cur.m) {
				m[dst] = cur.m[src]
				v[dst] = cur.v[src]
			}
		}
		cur.m, cur.v = m, v
	}
	if len(cur.m) < n {
		cur.m = append(cur.m, make([]float32, n-len(cur.m))...)
		cur.v = append(cur.v, make([]float32, n-len(cur.v))...)
	}
}

// Update applies one Adam step in place to a flat parameter array given
// its gradient, for parameter group p. Both slices must have the same
// length as the group's moment buffers (see Resize).
func (a *Adam) Update(p Param, params, grad []float32) {
	a.UpdateScaled(p, params, grad, nil)
}

// UpdateScaled is Update with an optional per-element multiplicative LR
// scaling, applied after bias correction (spec.md §4.4's "optional
// per-parameter multiplicative LR scaling"). A nil scaling is equivalent
// to all-ones (spec.md §8 invariant 5: Adam with scaling=ones is
// numerically identical to standard Adam). The SH parameter group uses
// this to make higher-order harmonic bands learn slower by
// lr_coeffs_sh_scale (see optim.SHScaling).
func (a *Adam) UpdateScaled(p Param, params, grad, scaling []float32) {
	mom := a.mom[p]
	if mom == nil || len(mom.m) != len(params) {
		a.Resize(p, len(params), nil)
		mom = a.mom[p]
	}

	step := a.step + 1
	lr := a.cfg.Schedules[p].At(step)
	b1, b2, eps := a.cfg.Beta1, a.cfg.Beta2, a.cfg.Eps
	bc1 := 1 - math.Pow(b1, float64(step))
	bc2 := 1 - math.Pow(b2, float64(step))

	for i := range params {
		g := float64(grad[i])
		m := b1*float64(mom.m[i]) + (1-b1)*g
		v := b2*float64(mom.v[i]) + (1-b2)*g*g
		mom.m[i] = float32(m)
		mom.v[i] = float32(v)

		mHat := m / bc1
		vHat := v / bc2
		stepLR := lr
		if scaling != nil {
			stepLR *= float64(scaling[i])
		}
		params[i] -= float32(stepLR * mHat / (math.Sqrt(vHat) + eps))
	}
}

// SHScaling builds the per-coefficient LR multiplier for the SH parameter
// group: the DC band (index 0, all 3 channels) scales by 1, every
// higher-order band scales by 1/shScale (spec.md §6.3's
// lr_coeffs_sh_scale, default 20), broadcast across splats and RGB
// channels. numCoeffs is (degree+1)^2, matching mathx.NumSHCoeffs.
func SHScaling(numSplats, numCoeffs int, shScale float64) []float32 {
	out := make([]float32, numSplats*numCoeffs*3)
	inv := float32(1)
	if shScale != 0 {
		inv = float32(1 / shScale)
	}
	for s := 0; s < numSplats; s++ {
		base := s * numCoeffs * 3
		for k := 0; k < numCoeffs; k++ {
			v := inv
			if k == 0 {
				v = 1
			}
			for c := 0; c < 3; c++ {
				out[base+k*3+c] = v
			}
		}
	}
	return out
}

// EndStep increments the shared step counter once all parameter groups
// have been updated for this iteration.
func (a *Adam) EndStep() { a.step++ }
