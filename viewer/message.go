package viewer

import (
	"encoding/json"

	"github.com/gogpu/gsplat/pipeline"
	"github.com/gogpu/gsplat/splat"
)

// RawSplats is the flat wire layout WiredPipelineMessage's TrainStep
// variant carries (spec.md §6.2): rotation is reordered from the
// module's internal (w,x,y,z) storage convention to (x,y,z,w) for the
// wire, per spec.md §6.2's explicit note ("note reordered from storage's
// w-first").
type RawSplats struct {
	Means        []float32 `json:"means"`
	Rotation     []float32 `json:"rotation"`
	LogScales    []float32 `json:"log_scales"`
	SHCoeffs     []float32 `json:"sh_coeffs"`
	SHCoeffsDims [3]int    `json:"sh_coeffs_dims"`
	RawOpacity   []float32 `json:"raw_opacity"`
}

// ToRawSplats flattens a splat.Splats snapshot into the wire layout.
func ToRawSplats(s *splat.Splats) RawSplats {
	n := s.Len()
	k := 0
	if n > 0 {
		k = len(s.SH[0])
	}
	means := make([]float32, n*3)
	rot := make([]float32, n*4)
	logScales := make([]float32, n*3)
	rawOpac := make([]float32, n)
	sh := make([]float32, n*k*3)

	for i := 0; i < n; i++ {
		means[i*3], means[i*3+1], means[i*3+2] = s.Means[i][0], s.Means[i][1], s.Means[i][2]
		q := s.Rotations[i]
		rot[i*4], rot[i*4+1], rot[i*4+2], rot[i*4+3] = q[1], q[2], q[3], q[0]
		logScales[i*3], logScales[i*3+1], logScales[i*3+2] = s.LogScales[i][0], s.LogScales[i][1], s.LogScales[i][2]
		rawOpac[i] = s.LogitOpacities[i]
		for j, c := range s.SH[i] {
			base := (i*k + j) * 3
			sh[base], sh[base+1], sh[base+2] = c[0], c[1], c[2]
		}
	}

	return RawSplats{
		Means: means, Rotation: rot, LogScales: logScales,
		SHCoeffs: sh, SHCoeffsDims: [3]int{n, k, 3}, RawOpacity: rawOpac,
	}
}

// WiredPipelineMessage is the JSON envelope sent to the browser/desktop
// frontend over its websocket (spec.md §6.2). Exactly one field is
// populated per message, the three variants the wire protocol supports:
// a training snapshot, completion, or an error string.
type WiredPipelineMessage struct {
	TrainStep *RawSplats `json:"train_step,omitempty"`
	Done      bool       `json:"done,omitempty"`
	Err       string     `json:"error,omitempty"`
}

// BridgeSink adapts pipeline.Message events into WiredPipelineMessage
// JSON frames via Send, dropping every PipelineMessage variant except
// TrainStep/Finished/Error: spec.md §6.2's wire protocol mirrors only
// those three (the source's wired_pipeline message drops RefineStep and
// EvalResult entirely; see DESIGN.md's Open Question log).
type BridgeSink struct {
	Send func([]byte) error
}

// Emit implements pipeline.Sink.
func (b *BridgeSink) Emit(msg pipeline.Message) {
	switch msg.Kind {
	case pipeline.KindTrainStep:
		raw := ToRawSplats(msg.Splats)
		b.send(WiredPipelineMessage{TrainStep: &raw})
	case pipeline.KindFinished:
		b.send(WiredPipelineMessage{Done: true})
	case pipeline.KindError:
		errText := ""
		if msg.Err != nil {
			errText = msg.Err.Error()
		}
		b.send(WiredPipelineMessage{Err: errText})
	}
}

func (b *BridgeSink) send(msg WiredPipelineMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = b.Send(data)
}
