package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
)

// AccumulationState is the progressive averaging state after the most recent Accumulate.
type AccumulationState struct {
	// Clear is true if the last pass discarded history and restarted from the raw sample.
	Clear bool
	// SampleCount is the number of frames in the running average.
	SampleCount uint32
	// Parity selects the ping-pong texture the next pass reads as history.
	Parity int
}

// AccumulationStage folds each raw radiance frame into a running average. Two ping-pong
// textures carry the history between frames and a third, stable texture carries the result
// to the tonemap pass.
type AccumulationStage interface {
	// Accumulate advances the state machine and records the accumulation dispatch.
	// changed enters the Reset state (clear, count 1); otherwise the Continue state increments
	// the count. Parity toggles on every call.
	//
	// Parameters:
	//   - cmd: the frame's command sequence
	//   - changed: true if the accumulated image is stale
	//   - ts: optional timestamp writes for the pass
	//
	// Returns:
	//   - error: an error if recording fails
	Accumulate(cmd renderer.CommandSequence, changed bool, ts *renderer.PassTimestamps) error

	// State returns the state left by the last Accumulate.
	State() AccumulationState

	// SampleCount returns the number of frames in the running average.
	SampleCount() uint32

	// Output returns the stable averaged texture read by the tonemap pass.
	Output() resource.Texture

	// Resize recreates every texture against a new radiance input. The next pass resets.
	//
	// Parameters:
	//   - radiance: the trace stage's radiance texture
	//
	// Returns:
	//   - error: an error if a texture or bind group cannot be created
	Resize(radiance resource.Texture) error

	// Release frees the stage's textures, buffers and bind groups.
	Release()
}

type accumulationStage struct {
	r      renderer.Renderer
	kernel shader.Shader
	block  *params.Block[params.AccumulateParams]
	slots  map[shader.AnnotationArg]int

	// pingPong[i] is read as history when parity is i and written when parity is 1-i.
	pingPong  [2]resource.Texture
	average   resource.Texture
	providers [2]bind_group_provider.BindGroupProvider

	state      AccumulationState
	forceReset bool
}

var _ AccumulationStage = &accumulationStage{}

// NewAccumulationStage compiles the accumulation kernel and allocates its textures at the size
// of the radiance input.
//
// Parameters:
//   - r: the renderer
//   - radiance: the trace stage's radiance texture
//   - opts: stage options
//
// Returns:
//   - AccumulationStage: the stage
//   - error: ErrLayoutMismatch if the kernel disagrees with the host, or a device error
func NewAccumulationStage(r renderer.Renderer, radiance resource.Texture, opts ...StageBuilderOption) (AccumulationStage, error) {
	o := newOptions(accumulateSource, opts)
	kernel, err := newKernel(AccumulatePipelineKey, params.AccumulateLayout, paramsInclude(params.AccumulateInclude, params.AccumulateLayout), o)
	if err != nil {
		return nil, err
	}
	slots, err := bindings(kernel,
		shader.AnnotationArgParams,
		shader.AnnotationArgRadiance,
		shader.AnnotationArgHistory,
		shader.AnnotationArgAccumulation,
		shader.AnnotationArgAverage,
	)
	if err != nil {
		return nil, err
	}
	if err := registerCompute(r, AccumulatePipelineKey, kernel); err != nil {
		return nil, err
	}
	block, err := params.NewBlock[params.AccumulateParams](r, "Accumulate Params", params.AccumulateLayout)
	if err != nil {
		return nil, err
	}

	a := &accumulationStage{
		r:      r,
		kernel: kernel,
		block:  block,
		slots:  slots,
	}
	if err := a.Resize(radiance); err != nil {
		a.Release()
		return nil, err
	}
	return a, nil
}

func (a *accumulationStage) Accumulate(cmd renderer.CommandSequence, changed bool, ts *renderer.PassTimestamps) error {
	next := a.state
	if changed || a.forceReset {
		next.Clear = true
		next.SampleCount = 1
	} else {
		next.Clear = false
		next.SampleCount++
	}

	rec := params.AccumulateParams{SampleCount: int32(next.SampleCount)}
	if next.Clear {
		rec.Clear = 1
	}
	a.block.Refresh(rec)

	out := a.average
	if err := cmd.DispatchCompute(AccumulatePipelineKey, a.providers[next.Parity], Tiling(out.Width(), out.Height()), ts); err != nil {
		return fmt.Errorf("accumulate: %w", err)
	}
	next.Parity = 1 - next.Parity
	a.state = next
	a.forceReset = false
	return nil
}

func (a *accumulationStage) State() AccumulationState {
	return a.state
}

func (a *accumulationStage) SampleCount() uint32 {
	return a.state.SampleCount
}

func (a *accumulationStage) Output() resource.Texture {
	return a.average
}

func (a *accumulationStage) Resize(radiance resource.Texture) error {
	w, h := radiance.Width(), radiance.Height()
	var textures [3]resource.Texture
	for i, label := range []string{"Accumulation 0", "Accumulation 1", "Average"} {
		tex, err := createTarget(a.r, label, w, h, RadianceFormat)
		if err != nil {
			releaseTextures(textures[:]...)
			return err
		}
		textures[i] = tex
	}

	var providers [2]bind_group_provider.BindGroupProvider
	for parity := range providers {
		p, err := initGroup(a.r, fmt.Sprintf("Accumulate %d", parity), a.kernel,
			bind_group_provider.WithBuffer(a.slots[shader.AnnotationArgParams], a.block.Buffer()),
			bind_group_provider.WithTexture(a.slots[shader.AnnotationArgRadiance], radiance),
			bind_group_provider.WithTexture(a.slots[shader.AnnotationArgHistory], textures[parity]),
			bind_group_provider.WithTexture(a.slots[shader.AnnotationArgAccumulation], textures[1-parity]),
			bind_group_provider.WithTexture(a.slots[shader.AnnotationArgAverage], textures[2]),
		)
		if err != nil {
			if providers[0] != nil {
				providers[0].Release()
			}
			releaseTextures(textures[:]...)
			return err
		}
		providers[parity] = p
	}

	a.releaseTargets()
	a.pingPong = [2]resource.Texture{textures[0], textures[1]}
	a.average = textures[2]
	a.providers = providers
	a.state = AccumulationState{}
	a.forceReset = true
	log.Debugf("accumulate: %dx%d", w, h)
	return nil
}

func (a *accumulationStage) releaseTargets() {
	for i, p := range a.providers {
		if p != nil {
			p.Release()
		}
		a.providers[i] = nil
	}
	releaseTextures(a.pingPong[0], a.pingPong[1], a.average)
	a.pingPong = [2]resource.Texture{}
	a.average = nil
}

func (a *accumulationStage) Release() {
	a.releaseTargets()
	if a.block != nil {
		a.block.Release()
		a.block = nil
	}
}
