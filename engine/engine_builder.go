package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithWindow sets the window the engine presents into and reads input from.
//
// Parameters:
//   - w: the window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderer sets the renderer. Without it Init creates a WGPU renderer on the window.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithScene selects the scene preset compiled into the trace kernel.
//
// Parameters:
//   - p: the preset
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(p scene.Preset) EngineBuilderOption {
	return func(e *engine) {
		e.preset = p
		e.description = nil
	}
}

// WithSceneDescription compiles a hand-built scene instead of a preset.
//
// Parameters:
//   - d: the scene description
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSceneDescription(d *scene.Description) EngineBuilderOption {
	return func(e *engine) {
		e.description = d
	}
}

// WithSeed sets the seed used for randomized presets and generated noise.
//
// Parameters:
//   - seed: the seed
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSeed(seed uint64) EngineBuilderOption {
	return func(e *engine) {
		e.seed = seed
	}
}

// WithParameters replaces the startup render parameters.
//
// Parameters:
//   - p: the startup settings, clamped on use
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithParameters(p params.RenderParameters) EngineBuilderOption {
	return func(e *engine) {
		e.store = params.NewStore(p)
	}
}

// WithProfiling enables or disables GPU pass timing and the CPU frame report.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithMaxReadbackBuffers caps the timestamp readback pool. Zero leaves it unbounded.
//
// Parameters:
//   - n: the maximum number of readback buffers
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxReadbackBuffers(n int) EngineBuilderOption {
	return func(e *engine) {
		e.maxReadback = n
	}
}

// WithTickRate sets how often held movement keys are applied, in ticks per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithNoise loads the trace kernel's noise texture from an image file instead of generating it.
//
// Parameters:
//   - path: the image path, empty to generate noise
//   - size: the square texture size the image is scaled to, 0 for the default
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithNoise(path string, size uint32) EngineBuilderOption {
	return func(e *engine) {
		e.noisePath = path
		if size > 0 {
			e.noiseSize = size
		}
	}
}

// WithSnapshot writes the display image to path when Run returns.
//
// Parameters:
//   - path: a .png or .webp file path, empty to disable
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSnapshot(path string) EngineBuilderOption {
	return func(e *engine) {
		e.snapshotPath = path
	}
}

// WithValidation runs every assembled kernel through the WGSL validator during Init.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithValidation(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.validate = enabled
	}
}

// WithClock replaces the wall clock used for the time parameter, the frame limit and reports.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithClock(now func() time.Time) EngineBuilderOption {
	return func(e *engine) {
		e.now = now
	}
}
