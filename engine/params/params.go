// Package params holds the render settings record, its versioned store, and the GPU uniform
// blocks derived from it.
package params

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// TonemapCurve selects the curve used by the tonemap kernel.
type TonemapCurve uint32

const (
	// CurveClamp clamps exposed radiance to [0, 1].
	CurveClamp TonemapCurve = iota
	// CurveReinhard applies x / (1 + x).
	CurveReinhard
	// CurveACES applies the Narkowicz ACES filmic fit.
	CurveACES
	// CurveUncharted2 applies the Hable Uncharted 2 filmic curve.
	CurveUncharted2
)

var curveNames = [...]string{"clamp", "reinhard", "aces", "uncharted2"}

func (c TonemapCurve) String() string {
	if int(c) < len(curveNames) {
		return curveNames[c]
	}
	return fmt.Sprintf("TonemapCurve(%d)", uint32(c))
}

// ParseTonemapCurve converts a curve name into a TonemapCurve.
//
// Parameters:
//   - name: one of clamp, reinhard, aces, uncharted2
//
// Returns:
//   - TonemapCurve: the parsed curve
//   - error: an error if the name is not recognised
func ParseTonemapCurve(name string) (TonemapCurve, error) {
	for i, n := range curveNames {
		if strings.EqualFold(name, n) {
			return TonemapCurve(i), nil
		}
	}
	return CurveClamp, fmt.Errorf("unknown tonemap curve %q", name)
}

// Limits applied by Clamp. They mirror the ranges exposed to the user.
const (
	MinFov                 = 1
	MaxFov                 = 140
	MinLightIntensity      = 1
	MaxLightIntensity      = 20
	MinSamplesPerPixel     = 1
	MaxSamplesPerPixel     = 20
	MaxExposure            = 7
	MaxGamma               = 7
	MaxSampleCountLimit    = 100000
	minPitch               = 1e-6
	maxPitch               = math.Pi - 1e-6
	defaultTextureWidth    = 1920
	defaultTextureHeight   = 1080
	defaultMaxSampleCount  = 10000
	defaultSamplesPerPixel = 4
)

// RenderParameters is the full set of camera, sampling and display settings for a frame.
type RenderParameters struct {
	TextureWidth        uint32
	TextureHeight       uint32
	Fov                 float32
	SamplesPerPixel     uint32
	CameraPosition      [3]float32
	Pitch               float32
	Yaw                 float32
	LightIntensity      float32
	LightSamplingAmount float32
	Time                float32
	Exposure            float32
	Gamma               float32
	Curve               TonemapCurve
	// SampleCount is filled in per frame from the accumulation state; the store never holds it.
	SampleCount uint32
	// MaxSampleCount stops tracing once reached. Zero means unlimited.
	MaxSampleCount uint32
}

// DefaultRenderParameters returns the startup settings.
func DefaultRenderParameters() RenderParameters {
	return RenderParameters{
		TextureWidth:        defaultTextureWidth,
		TextureHeight:       defaultTextureHeight,
		Fov:                 80,
		SamplesPerPixel:     defaultSamplesPerPixel,
		CameraPosition:      [3]float32{0, 1, 6},
		Pitch:               math.Pi / 2,
		Yaw:                 0,
		LightIntensity:      1,
		LightSamplingAmount: 0.5,
		Exposure:            1,
		Gamma:               2.2,
		Curve:               CurveACES,
		MaxSampleCount:      defaultMaxSampleCount,
	}
}

// Clamp returns a copy with every user-controlled field limited to its valid range.
func (p RenderParameters) Clamp() RenderParameters {
	p.TextureWidth = max(p.TextureWidth, 1)
	p.TextureHeight = max(p.TextureHeight, 1)
	p.Fov = min(max(p.Fov, MinFov), MaxFov)
	p.SamplesPerPixel = min(max(p.SamplesPerPixel, MinSamplesPerPixel), MaxSamplesPerPixel)
	p.LightIntensity = min(max(p.LightIntensity, MinLightIntensity), MaxLightIntensity)
	p.LightSamplingAmount = min(max(p.LightSamplingAmount, 0), 1)
	p.Exposure = min(max(p.Exposure, 0), MaxExposure)
	p.Gamma = min(max(p.Gamma, 0), MaxGamma)
	p.Curve = min(p.Curve, CurveUncharted2)
	p.MaxSampleCount = min(p.MaxSampleCount, MaxSampleCountLimit)
	p.Pitch = min(max(p.Pitch, minPitch), maxPitch)
	return p
}

// Invalidates reports whether moving from prev to p makes the accumulated image stale.
// Exposure, gamma, curve and time only affect display or seeding and never invalidate.
//
// Parameters:
//   - prev: the settings the current accumulation was built with
//
// Returns:
//   - bool: true if accumulation must restart
func (p RenderParameters) Invalidates(prev RenderParameters) bool {
	return p.TextureWidth != prev.TextureWidth ||
		p.TextureHeight != prev.TextureHeight ||
		p.Fov != prev.Fov ||
		p.SamplesPerPixel != prev.SamplesPerPixel ||
		p.CameraPosition != prev.CameraPosition ||
		p.Pitch != prev.Pitch ||
		p.Yaw != prev.Yaw ||
		p.LightIntensity != prev.LightIntensity ||
		p.LightSamplingAmount != prev.LightSamplingAmount ||
		p.MaxSampleCount != prev.MaxSampleCount
}

// Converged reports whether the sample budget has been reached.
func (p RenderParameters) Converged() bool {
	return p.MaxSampleCount > 0 && p.SampleCount >= p.MaxSampleCount
}

// Trace converts the settings into the trace kernel's uniform record.
func (p RenderParameters) Trace() TraceParams {
	return TraceParams{
		TextureWidth:        float32(p.TextureWidth),
		TextureHeight:       float32(p.TextureHeight),
		Fov:                 p.Fov,
		SamplesPerPixel:     float32(p.SamplesPerPixel),
		CameraPosition:      p.CameraPosition,
		Pitch:               p.Pitch,
		Yaw:                 p.Yaw,
		LightIntensity:      p.LightIntensity,
		LightSamplingAmount: p.LightSamplingAmount,
		Time:                p.Time,
		SampleCount:         p.SampleCount,
	}
}

// Tonemap converts the settings into the tonemap kernel's uniform record.
func (p RenderParameters) Tonemap() TonemapParams {
	return TonemapParams{
		Exposure: p.Exposure,
		Gamma:    p.Gamma,
		Curve:    uint32(p.Curve),
	}
}

// Frame is a read-only snapshot of the store taken at the start of a frame.
type Frame struct {
	// Params is a copy of the settings; mutating it does not affect the store.
	Params RenderParameters
	// Version increases every time an update changes any field.
	Version uint64
	// Changed is true if an accumulation-invalidating update happened since the previous Acquire.
	Changed bool
}

// Store owns the live RenderParameters. The interaction handler is the only writer, through
// Update; the frame loop reads a snapshot once per frame through Acquire.
type Store struct {
	mu      sync.Mutex
	params  RenderParameters
	version uint64
	changed bool
}

// NewStore creates a store holding the clamped initial settings. The first Acquire reports Changed.
//
// Parameters:
//   - initial: the startup settings
//
// Returns:
//   - *Store: the store
func NewStore(initial RenderParameters) *Store {
	initial.SampleCount = 0
	return &Store{
		params:  initial.Clamp(),
		version: 1,
		changed: true,
	}
}

// Update applies fn to a copy of the settings, clamps the result and commits it.
//
// Parameters:
//   - fn: the mutation to apply
//
// Returns:
//   - bool: true if the update invalidated accumulation
func (s *Store) Update(fn func(p *RenderParameters)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.params
	fn(&next)
	next.SampleCount = 0
	next = next.Clamp()
	if next == s.params {
		return false
	}
	invalidated := next.Invalidates(s.params)
	s.params = next
	s.version++
	s.changed = s.changed || invalidated
	return invalidated
}

// Peek returns a copy of the current settings without consuming the changed flag.
func (s *Store) Peek() RenderParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Acquire snapshots the settings for one frame and consumes the changed flag.
//
// Returns:
//   - Frame: the snapshot
func (s *Store) Acquire() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{Params: s.params, Version: s.version, Changed: s.changed}
	s.changed = false
	return f
}
