package pipeline

import (
	"time"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/splat"
)

// MessageKind tags which PipelineMessage variant is populated, since Go
// has no native sum type; exactly one of Message's optional fields is
// meaningful for a given Kind (spec.md §6.1).
type MessageKind int

const (
	KindNewSource MessageKind = iota
	KindStartLoading
	KindViewSplats
	KindTrainStep
	KindRefineStep
	KindEvalResult
	KindFinished
	KindError
)

// TrainStepStats carries the per-step scalars a TrainStep message reports
// (spec.md §6.1), enough for a CLI or log line to show loss/throughput
// without re-deriving it from the splats.
type TrainStepStats struct {
	Loss       float32
	L1         float32
	SSIM       float32
	NumSplats  int
	NumVisible int
}

// RefineStats reports what one refine.Step call did (spec.md §6.1's
// RefineStep.stats).
type RefineStats struct {
	Added  int
	Pruned int
}

// Message is one tagged PipelineMessage (spec.md §6.1). Consumers switch
// on Kind and read the field(s) that variant populates.
type Message struct {
	Kind MessageKind

	// KindStartLoading
	Training bool

	// KindViewSplats, KindTrainStep
	UpAxis       *mathx.Vec3
	Splats       *splat.Splats
	Frame        uint32
	TotalFrames  uint32
	Stats        TrainStepStats
	Iter         uint32
	TotalElapsed time.Duration

	// KindRefineStep
	RefineStats    RefineStats
	CurSplatCount  int

	// KindEvalResult
	AvgPSNR float32
	AvgSSIM float32

	// KindError
	Err error
}

// Sink receives PipelineMessages as the training loop emits them. A real
// consumer is a bounded channel (see Run); tests can use a simple slice
// collector.
type Sink interface {
	Emit(Message)
}

// ChannelSink adapts a buffered channel to the Sink interface, matching
// spec.md §9's "coroutine control flow" note: implementations without
// native async use a worker thread pushing into a bounded queue, and
// Emit blocks when the queue is full (applying the back-pressure the
// spec's timing note says training-duration measurement must exclude).
type ChannelSink chan Message

// Emit sends msg, blocking if the channel is full.
func (c ChannelSink) Emit(msg Message) { c <- msg }
