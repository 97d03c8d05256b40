// Package pipeline orchestrates the training state machine C9 describes:
// it loads a scene, drives the splat/optimizer/rasterizer loop, calls into
// refine on its cadence, periodically evaluates and exports, and streams
// PipelineMessages to any listener (a CLI progress bar, the real-time
// viewer, a test).
package pipeline

import (
	"github.com/gogpu/gsplat/internal/colmap"
	"github.com/gogpu/gsplat/optim"
	"github.com/gogpu/gsplat/refine"
)

// TrainOption configures a TrainConfig during construction, matching the
// gogpu-gg ContextOption functional-option pattern.
type TrainOption func(*TrainConfig)

// TrainConfig holds the training hyperparameters spec.md §6.3 names, with
// the documented defaults.
type TrainConfig struct {
	SHDegree   int
	TotalSteps int
	MaxSplats  int

	LRMean, LRMeanEnd     float64
	LRScale, LRScaleEnd   float64
	LRRotation            float64
	LRCoeffsDC            float64
	LRCoeffsSHScale       float64
	LROpac                float64
	OpacLossWeight        float64
	MatchAlphaWeight      float64

	RefineEvery         int
	GrowthGradThreshold float32
	GrowthSelectFraction float32
	GrowthStopIter      int

	SSIMWeight      float32
	MeanNoiseWeight float64

	// SHDegreeInterval grows the active SH degree by one every this many
	// steps, up to SHDegree (SPEC_FULL §C.5; spec.md's C4 only exposes
	// WithSHDegree as a primitive, not the schedule that drives it).
	SHDegreeInterval int
}

// DefaultTrainConfig returns spec.md §6.3's documented defaults.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		SHDegree:   3,
		TotalSteps: 1000,
		MaxSplats:  10_000_000,

		LRMean:    4e-5,
		LRMeanEnd: 4e-7,
		LRScale:     1e-2,
		LRScaleEnd:  6e-3,
		LRRotation:  1e-3,
		LRCoeffsDC:      3e-3,
		LRCoeffsSHScale: 20,
		LROpac:           3e-2,
		OpacLossWeight:   1e-8,
		MatchAlphaWeight: 0.1,

		RefineEvery:          150,
		GrowthGradThreshold:  8.5e-4,
		GrowthSelectFraction: 0.1,
		GrowthStopIter:       12500,

		SSIMWeight:      0.2,
		MeanNoiseWeight: 1e4,

		SHDegreeInterval: 1000,
	}
}

// WithTotalSteps overrides the number of training steps.
func WithTotalSteps(n int) TrainOption {
	return func(c *TrainConfig) { c.TotalSteps = n }
}

// WithSHDegree overrides the target (maximum) SH degree.
func WithSHDegree(d int) TrainOption {
	return func(c *TrainConfig) { c.SHDegree = d }
}

// WithRefineEvery overrides the refine cadence.
func WithRefineEvery(n int) TrainOption {
	return func(c *TrainConfig) { c.RefineEvery = n }
}

// WithMaxSplats overrides the population cap.
func WithMaxSplats(n int) TrainOption {
	return func(c *TrainConfig) { c.MaxSplats = n }
}

// NewTrainConfig builds a TrainConfig from the documented defaults with
// opts applied in order.
func NewTrainConfig(opts ...TrainOption) TrainConfig {
	cfg := DefaultTrainConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c TrainConfig) adamConfig() optim.Config {
	cfg := optim.Config{Beta1: 0.9, Beta2: 0.999, Eps: 1e-15}
	cfg.Schedules[optim.ParamMeans] = optim.LRSchedule{Initial: c.LRMean, Final: c.LRMeanEnd, DecaySteps: c.TotalSteps}
	cfg.Schedules[optim.ParamLogScales] = optim.LRSchedule{Initial: c.LRScale, Final: c.LRScaleEnd, DecaySteps: c.TotalSteps}
	cfg.Schedules[optim.ParamRotations] = optim.LRSchedule{Initial: c.LRRotation}
	cfg.Schedules[optim.ParamLogitOpacities] = optim.LRSchedule{Initial: c.LROpac}
	cfg.Schedules[optim.ParamSH] = optim.LRSchedule{Initial: c.LRCoeffsDC}
	return cfg
}

func (c TrainConfig) refineConfig() refine.Config {
	return refine.Config{
		GrowthGradThreshold:   c.GrowthGradThreshold,
		GrowthSelectFraction:  c.GrowthSelectFraction,
		GrowthStopIter:        c.GrowthStopIter,
		MaxSplats:             c.MaxSplats,
		PruneOpacityThreshold: 0.99 / 255,
	}
}

// LoadOption configures a LoadConfig during construction.
type LoadOption func(*LoadConfig)

// LoadConfig controls how a scene is read from disk (spec.md §6.3).
type LoadConfig struct {
	SparseDir, ImageDir, MaskDir string
	Variant                      colmap.Variant

	MaxFrames        int
	MaxResolution    int
	EvalSplitEvery   int
	SubsampleFrames  int
	SubsamplePoints  int
}

// DefaultLoadConfig returns spec.md §6.3's documented defaults.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{MaxResolution: 1920}
}

// WithMaxResolution overrides the resize cap applied to training images.
func WithMaxResolution(n int) LoadOption {
	return func(c *LoadConfig) { c.MaxResolution = n }
}

// WithEvalSplitEvery overrides the eval holdout cadence.
func WithEvalSplitEvery(n int) LoadOption {
	return func(c *LoadConfig) { c.EvalSplitEvery = n }
}

// NewLoadConfig builds a LoadConfig from the documented defaults with opts
// applied in order.
func NewLoadConfig(sparseDir, imageDir string, opts ...LoadOption) LoadConfig {
	cfg := DefaultLoadConfig()
	cfg.SparseDir, cfg.ImageDir = sparseDir, imageDir
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// PipelineOption configures a PipelineConfig during construction.
type PipelineOption func(*PipelineConfig)

// PipelineConfig controls the training run's cadence and I/O, independent
// of the model hyperparameters in TrainConfig (spec.md §6.3).
type PipelineConfig struct {
	Seed      int64
	StartIter int

	EvalEvery   int
	ExportEvery int

	ExportPath     string
	ExportName     string
	EvalSaveToDisk bool
}

// DefaultPipelineConfig returns spec.md §6.3's documented defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Seed:        42,
		StartIter:   0,
		EvalEvery:   1000,
		ExportEvery: 5000,
		ExportPath:  ".",
		ExportName:  "export_{iter}.ply",
	}
}

// WithSeed overrides the RNG seed.
func WithSeed(seed int64) PipelineOption {
	return func(c *PipelineConfig) { c.Seed = seed }
}

// WithStartIter resumes a run at the given step (SPEC_FULL §C.4).
func WithStartIter(iter int) PipelineOption {
	return func(c *PipelineConfig) { c.StartIter = iter }
}

// WithExport overrides the export cadence and destination.
func WithExport(every int, path, name string) PipelineOption {
	return func(c *PipelineConfig) {
		c.ExportEvery = every
		c.ExportPath = path
		c.ExportName = name
	}
}

// NewPipelineConfig builds a PipelineConfig from the documented defaults
// with opts applied in order.
func NewPipelineConfig(opts ...PipelineOption) PipelineConfig {
	cfg := DefaultPipelineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
