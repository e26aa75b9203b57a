package params

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestTraceLayoutOffsets(t *testing.T) {
	want := map[string]uint64{
		"texture_width":         0,
		"texture_height":        4,
		"fov":                   8,
		"samples_per_pixel":     12,
		"camera_position":       16,
		"pitch":                 28,
		"yaw":                   32,
		"light_intensity":       36,
		"light_sampling_amount": 40,
		"time":                  44,
		"sample_count":          48,
	}
	if len(TraceLayout.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(TraceLayout.Fields), len(want))
	}
	for _, f := range TraceLayout.Fields {
		if f.Offset != want[f.Name] {
			t.Errorf("%s offset = %d, want %d", f.Name, f.Offset, want[f.Name])
		}
	}
	if TraceLayout.Size != 64 || TraceLayout.Align != 16 {
		t.Errorf("size/align = %d/%d, want 64/16", TraceLayout.Size, TraceLayout.Align)
	}
}

func TestSmallLayoutsPadToSixteenBytes(t *testing.T) {
	cases := []struct {
		layout    *Layout
		size, buf uint64
	}{
		{AccumulateLayout, 8, 16},
		{TonemapLayout, 12, 16},
	}
	for _, c := range cases {
		if c.layout.Size != c.size || c.layout.BufferSize() != c.buf {
			t.Errorf("%s: size %d buffer %d, want %d %d", c.layout.Name, c.layout.Size, c.layout.BufferSize(), c.size, c.buf)
		}
	}
}

func TestEncodeTraceParams(t *testing.T) {
	data, err := TraceLayout.Encode(TraceParams{
		TextureWidth:   1920,
		CameraPosition: [3]float32{1, 2, 3},
		Yaw:            0.5,
		SampleCount:    7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 64 {
		t.Fatalf("encoded %d bytes, want 64", len(data))
	}
	f32 := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(data[off:])) }
	if f32(0) != 1920 {
		t.Errorf("texture_width = %v", f32(0))
	}
	if f32(16) != 1 || f32(20) != 2 || f32(24) != 3 {
		t.Errorf("camera_position = %v %v %v", f32(16), f32(20), f32(24))
	}
	if f32(32) != 0.5 {
		t.Errorf("yaw = %v", f32(32))
	}
	if got := binary.LittleEndian.Uint32(data[48:]); got != 7 {
		t.Errorf("sample_count = %d", got)
	}
}

func TestEncodeNegativeInt(t *testing.T) {
	data, err := AccumulateLayout.Encode(&AccumulateParams{Clear: 1, SampleCount: -2})
	if err != nil {
		t.Fatal(err)
	}
	if got := int32(binary.LittleEndian.Uint32(data[4:])); got != -2 {
		t.Errorf("sample_count = %d, want -2", got)
	}
}

func TestEncodeRejectsOtherTypes(t *testing.T) {
	if _, err := TraceLayout.Encode(TonemapParams{}); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestLayoutWGSL(t *testing.T) {
	src := TonemapLayout.WGSL()
	for _, want := range []string{"struct TonemapParams {", "exposure: f32,", "gamma: f32,", "curve: u32,"} {
		if !strings.Contains(src, want) {
			t.Errorf("WGSL missing %q:\n%s", want, src)
		}
	}
}

func TestUnsupportedField(t *testing.T) {
	type bad struct {
		Weight float64 `wgsl:"weight"`
	}
	if _, err := NewLayout("Bad", bad{}); !errors.Is(err, ErrUnsupportedField) {
		t.Fatalf("got %v, want ErrUnsupportedField", err)
	}
}

func TestUntaggedFieldsSkipped(t *testing.T) {
	type mixed struct {
		A      float32 `wgsl:"a"`
		Hidden float64
		B      [4]float32 `wgsl:"b"`
	}
	l, err := NewLayout("Mixed", mixed{})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Fields) != 2 || l.Fields[1].Offset != 16 || l.Size != 32 {
		t.Fatalf("unexpected layout %+v", l)
	}
}
