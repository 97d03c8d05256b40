// Package refine implements the adaptive density control loop C7 runs
// periodically during training: accumulating a per-splat refinement
// weight from the backward rasterizer's screen-space positional
// gradients, then pruning transparent Gaussians (with a resample-fill to
// hold total opacity mass roughly constant) and splitting the
// highest-gradient survivors, following spec.md §4.6.
package refine

import (
	"math"
	"math/rand"
	"sort"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/splat"
)

// Accumulator is the "refine_record" of spec.md §3.6: one float per
// splat, the maximum observed screen-space refinement-weight magnitude
// since the last refine call.
type Accumulator struct {
	Record []float32
}

// NewAccumulator allocates a zeroed accumulator sized for n splats.
func NewAccumulator(n int) *Accumulator {
	return &Accumulator{Record: make([]float32, n)}
}

// Resize grows or shrinks the accumulator to track n splats, zero-filling
// new entries and keeping only the given indices when shrinking (must
// match the splat.Splats.Keep indices used in the same refine step).
func (a *Accumulator) Resize(n int, keep []int) {
	if keep != nil {
		rec := make([]float32, len(keep))
		for dst, src := range keep {
			if src < len(a.Record) {
				rec[dst] = a.Record[src]
			}
		}
		a.Record = rec
	}
	if len(a.Record) < n {
		a.Record = append(a.Record, make([]float32, n-len(a.Record))...)
	}
}

// Accumulate folds one step's rendered screen-space refinement-weight
// magnitudes into the running max, for the splats that were visible this
// step (indices into the full splat array, parallel to refineWeight).
func (a *Accumulator) Accumulate(visible []int32, refineWeight []float32) {
	for i, idx := range visible {
		if refineWeight[i] > a.Record[idx] {
			a.Record[idx] = refineWeight[i]
		}
	}
}

// Reset zeroes the accumulator after a refine step.
func (a *Accumulator) Reset() {
	for i := range a.Record {
		a.Record[i] = 0
	}
}

// Config holds the density-control thresholds spec.md §6.3 names.
type Config struct {
	// GrowthGradThreshold is the refine_record magnitude above which a
	// splat is a split candidate (default 8.5e-4).
	GrowthGradThreshold float32
	// GrowthSelectFraction keeps only this fraction of the candidates
	// that pass GrowthGradThreshold, highest-gradient first (default 0.1).
	GrowthSelectFraction float32
	// GrowthStopIter disables splitting once the step counter reaches it.
	GrowthStopIter int
	// MaxSplats caps the population (spec.md §3.1's MAX_SPLATS).
	MaxSplats int
	// PruneOpacityThreshold is the sigmoid-activated opacity below which a
	// splat is pruned (spec.md §4.6's 0.99/255).
	PruneOpacityThreshold float32
}

// DefaultConfig returns the defaults spec.md §6.3 documents.
func DefaultConfig() Config {
	return Config{
		GrowthGradThreshold:   8.5e-4,
		GrowthSelectFraction:  0.1,
		GrowthStopIter:        12500,
		MaxSplats:             10_000_000,
		PruneOpacityThreshold: 0.99 / 255,
	}
}

// Result reports what a Step call did, for logging and the pipeline's
// RefineStep message.
type Result struct {
	Pruned int
	Added  int
	Total  int
}

// Step runs one prune + resample-fill + split pass in place on s,
// following spec.md §4.6. It returns the indices into the pre-step splat
// array that the prune phase kept, so the caller can resize any parallel
// optimizer state with splat.Splats.Keep / Adam.Resize using the same
// indices before the append-only split phase runs.
func Step(s *splat.Splats, acc *Accumulator, cfg Config, step int, rng *rand.Rand) (Result, []int) {
	n := s.Len()

	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if s.Opacity(i) >= cfg.PruneOpacityThreshold {
			keep = append(keep, i)
		}
	}
	pruned := n - len(keep)
	if len(keep) == 0 {
		// spec.md §8 boundary behavior 10: an empty splat cloud is
		// disallowed; keep the single highest-opacity survivor instead
		// of collapsing to zero rows.
		best := 0
		for i := 1; i < n; i++ {
			if s.Opacity(i) > s.Opacity(best) {
				best = i
			}
		}
		keep = []int{best}
		pruned = n - 1
	}
	s.Keep(keep)
	acc.Resize(len(keep), keep)

	if pruned > 0 {
		resampleFill(s, acc, pruned, rng)
	}

	added := 0
	if step < cfg.GrowthStopIter {
		added = splitCandidates(s, acc, cfg, rng)
	}
	acc.Reset()

	return Result{Pruned: pruned, Added: added, Total: s.Len()}, keep
}

// resampleFill draws `count` indices from a multinomial over the current
// opacities (NaN entries get zero weight) and duplicates those rows
// verbatim, holding total rendered opacity mass roughly constant across a
// prune (spec.md §4.6 step 2).
func resampleFill(s *splat.Splats, acc *Accumulator, count int, rng *rand.Rand) {
	n := s.Len()
	if n == 0 || count <= 0 {
		return
	}
	weights := make([]float64, n)
	var total float64
	for i := 0; i < n; i++ {
		o := s.Opacity(i)
		if math.IsNaN(float64(o)) {
			continue
		}
		weights[i] = float64(o)
		total += weights[i]
	}
	if total <= 0 {
		// All weights are zero/NaN: fall back to uniform so the draw is
		// still well defined.
		for i := range weights {
			weights[i] = 1
		}
		total = float64(n)
	}

	extra := &splat.Splats{}
	for k := 0; k < count; k++ {
		i := sampleMultinomial(weights, total, rng)
		extra.Means = append(extra.Means, s.Means[i])
		extra.LogScales = append(extra.LogScales, s.LogScales[i])
		extra.Rotations = append(extra.Rotations, s.Rotations[i])
		extra.LogitOpacities = append(extra.LogitOpacities, s.LogitOpacities[i])
		extra.SH = append(extra.SH, append([]mathx.Vec3(nil), s.SH[i]...))
	}
	s.Append(extra)
	acc.Resize(s.Len(), nil)
}

// sampleMultinomial draws one index proportional to weights (which sum to
// total), via inverse-CDF sampling.
func sampleMultinomial(weights []float64, total float64, rng *rand.Rand) int {
	target := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if cum >= target {
			return i
		}
	}
	return len(weights) - 1
}

// splitScaleShrink is ln(sqrt(2)), subtracted from both children's
// log_scale so the pair's combined footprint approximates the parent's
// (spec.md §4.6 step 3).
var splitScaleShrink = float32(0.5 * math.Log(2))

// splitCandidates selects splats whose refine_record exceeds
// cfg.GrowthGradThreshold, keeps the highest-gradient cfg.GrowthSelectFraction
// of them (capped by remaining population budget), and splits each into
// two children per spec.md §4.6 step 3, returning the number of new rows
// appended.
func splitCandidates(s *splat.Splats, acc *Accumulator, cfg Config, rng *rand.Rand) int {
	n := s.Len()
	type candidate struct {
		idx  int
		grad float32
	}
	var candidates []candidate
	for i := 0; i < n; i++ {
		if acc.Record[i] > cfg.GrowthGradThreshold {
			candidates = append(candidates, candidate{i, acc.Record[i]})
		}
	}
	if len(candidates) == 0 {
		return 0
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].grad > candidates[j].grad })

	keepN := int(float32(len(candidates)) * cfg.GrowthSelectFraction)
	if keepN < 1 {
		keepN = 1
	}
	if keepN > len(candidates) {
		keepN = len(candidates)
	}
	budget := cfg.MaxSplats - n
	if budget <= 0 {
		return 0
	}
	if keepN > budget {
		keepN = budget
	}
	candidates = candidates[:keepN]

	extra := &splat.Splats{}
	for _, c := range candidates {
		i := c.idx
		scale := s.Scale(i)
		rot := mathx.RotationMatrix(s.Rotations[i])
		sample := mathx.Vec3{
			float32(rng.NormFloat64()) * 0.5 * scale[0],
			float32(rng.NormFloat64()) * 0.5 * scale[1],
			float32(rng.NormFloat64()) * 0.5 * scale[2],
		}
		offset := rot.MulVec3(sample)

		newLogScale := s.LogScales[i].Sub(mathx.Vec3{splitScaleShrink, splitScaleShrink, splitScaleShrink})
		newOpacity := preserveTransmittanceOpacity(s.Opacity(i))

		// The original row becomes one child in place (offset
		// subtracted from its mean); the appended row is the other
		// child (offset added), per spec.md §4.6 step 3.
		cloneMean := s.Means[i].Add(offset)
		s.Means[i] = s.Means[i].Sub(offset)
		s.LogScales[i] = newLogScale
		s.LogitOpacities[i] = newOpacity

		extra.Means = append(extra.Means, cloneMean)
		extra.LogScales = append(extra.LogScales, newLogScale)
		extra.Rotations = append(extra.Rotations, s.Rotations[i])
		extra.LogitOpacities = append(extra.LogitOpacities, newOpacity)
		extra.SH = append(extra.SH, append([]mathx.Vec3(nil), s.SH[i]...))
	}
	s.Append(extra)
	acc.Resize(s.Len(), nil)
	return len(extra.Means)
}

// preserveTransmittanceOpacity solves sigma(new) = 1 - sqrt(1 - sigma(old))
// for the new opacity's logit, so that compositing both children at the
// same screen position reproduces the parent's transmittance (spec.md
// §4.6 step 3; exercised by S5 in spec.md §8).
func preserveTransmittanceOpacity(old float32) float32 {
	newOpacity := 1 - float32(math.Sqrt(1-float64(old)))
	if newOpacity <= 0 {
		newOpacity = 1e-6
	}
	if newOpacity >= 1 {
		newOpacity = 1 - 1e-6
	}
	return logit(newOpacity)
}

func logit(p float32) float32 {
	p64 := float64(p)
	return float32(math.Log(p64 / (1 - p64)))
}
