package viewer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gogpu/gsplat/internal/mathx"
	"github.com/gogpu/gsplat/pipeline"
	"github.com/gogpu/gsplat/splat"
)

func TestToRawSplats_FlattensAndReordersRotation(t *testing.T) {
	s := &splat.Splats{
		Means:          []mathx.Vec3{{1, 2, 3}},
		LogScales:      []mathx.Vec3{{0.1, 0.2, 0.3}},
		Rotations:      []mathx.Quat{{0.1, 0.2, 0.3, 0.4}}, // w,x,y,z
		LogitOpacities: []float32{0.5},
		SH:             [][]mathx.Vec3{{{0.9, 0.8, 0.7}}},
	}
	raw := ToRawSplats(s)

	if len(raw.Means) != 3 || raw.Means[0] != 1 || raw.Means[1] != 2 || raw.Means[2] != 3 {
		t.Fatalf("Means = %v, want [1,2,3]", raw.Means)
	}
	wantRot := []float32{0.2, 0.3, 0.4, 0.1} // x,y,z,w
	for i, v := range wantRot {
		if raw.Rotation[i] != v {
			t.Fatalf("Rotation[%d] = %v, want %v", i, raw.Rotation[i], v)
		}
	}
	if raw.SHCoeffsDims != ([3]int{1, 1, 3}) {
		t.Fatalf("SHCoeffsDims = %v, want [1,1,3]", raw.SHCoeffsDims)
	}
	if len(raw.SHCoeffs) != 3 || raw.SHCoeffs[0] != 0.9 {
		t.Fatalf("SHCoeffs = %v, want [0.9, 0.8, 0.7]", raw.SHCoeffs)
	}
}

func TestToRawSplats_EmptyCloud(t *testing.T) {
	s := &splat.Splats{}
	raw := ToRawSplats(s)
	if len(raw.Means) != 0 || raw.SHCoeffsDims != ([3]int{0, 0, 3}) {
		t.Fatalf("ToRawSplats(empty) = %+v, want all-zero dims", raw)
	}
}

type sentFrame struct {
	data []byte
}

func TestBridgeSink_TrainStepEmitsRawSplatsJSON(t *testing.T) {
	var sent []sentFrame
	b := &BridgeSink{Send: func(data []byte) error {
		sent = append(sent, sentFrame{data: append([]byte(nil), data...)})
		return nil
	}}

	s := &splat.Splats{
		Means:          []mathx.Vec3{{1, 2, 3}},
		LogScales:      []mathx.Vec3{{0, 0, 0}},
		Rotations:      []mathx.Quat{{1, 0, 0, 0}},
		LogitOpacities: []float32{0},
		SH:             [][]mathx.Vec3{{{0, 0, 0}}},
	}
	b.Emit(pipeline.Message{Kind: pipeline.KindTrainStep, Splats: s})

	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	var msg WiredPipelineMessage
	if err := json.Unmarshal(sent[0].data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.TrainStep == nil {
		t.Fatalf("TrainStep field is nil, want populated RawSplats")
	}
	if msg.Done || msg.Err != "" {
		t.Fatalf("TrainStep message also set Done/Err: %+v", msg)
	}
}

func TestBridgeSink_FinishedEmitsDone(t *testing.T) {
	var got []byte
	b := &BridgeSink{Send: func(data []byte) error { got = data; return nil }}
	b.Emit(pipeline.Message{Kind: pipeline.KindFinished})

	var msg WiredPipelineMessage
	if err := json.Unmarshal(got, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !msg.Done {
		t.Fatalf("Done = false, want true")
	}
}

func TestBridgeSink_ErrorEmitsMessage(t *testing.T) {
	var got []byte
	b := &BridgeSink{Send: func(data []byte) error { got = data; return nil }}
	b.Emit(pipeline.Message{Kind: pipeline.KindError, Err: errors.New("boom")})

	var msg WiredPipelineMessage
	if err := json.Unmarshal(got, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Err != "boom" {
		t.Fatalf("Err = %q, want %q", msg.Err, "boom")
	}
}

func TestBridgeSink_IgnoresOtherKinds(t *testing.T) {
	called := false
	b := &BridgeSink{Send: func(data []byte) error { called = true; return nil }}
	b.Emit(pipeline.Message{Kind: pipeline.KindRefineStep})
	b.Emit(pipeline.Message{Kind: pipeline.KindEvalResult})
	b.Emit(pipeline.Message{Kind: pipeline.KindNewSource})
	if called {
		t.Fatalf("Send was called for a message kind the wire protocol drops")
	}
}
