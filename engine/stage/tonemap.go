package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
)

// TonemapStage maps the averaged HDR radiance to the RGBA8 display texture.
type TonemapStage interface {
	// Tonemap refreshes exposure, gamma and curve and records the tonemap dispatch.
	//
	// Parameters:
	//   - cmd: the frame's command sequence
	//   - p: the frame's settings
	//   - ts: optional timestamp writes for the pass
	//
	// Returns:
	//   - error: an error if recording fails
	Tonemap(cmd renderer.CommandSequence, p params.RenderParameters, ts *renderer.PassTimestamps) error

	// Display returns the display-ready texture.
	Display() resource.Texture

	// Resize recreates the display texture to match a new averaged input.
	//
	// Parameters:
	//   - average: the accumulation stage's output texture
	//
	// Returns:
	//   - error: an error if the texture or bind group cannot be created
	Resize(average resource.Texture) error

	// Release frees the stage's texture, buffer and bind group.
	Release()
}

type tonemapStage struct {
	r        renderer.Renderer
	kernel   shader.Shader
	block    *params.Block[params.TonemapParams]
	slots    map[shader.AnnotationArg]int
	provider bind_group_provider.BindGroupProvider
	display  resource.Texture
}

var _ TonemapStage = &tonemapStage{}

// NewTonemapStage compiles the tonemap kernel and allocates the display texture.
//
// Parameters:
//   - r: the renderer
//   - average: the accumulation stage's output texture
//   - opts: stage options
//
// Returns:
//   - TonemapStage: the stage
//   - error: ErrLayoutMismatch if the kernel disagrees with the host, or a device error
func NewTonemapStage(r renderer.Renderer, average resource.Texture, opts ...StageBuilderOption) (TonemapStage, error) {
	o := newOptions(tonemapSource, opts)
	kernel, err := newKernel(TonemapPipelineKey, params.TonemapLayout, paramsInclude(params.TonemapInclude, params.TonemapLayout), o)
	if err != nil {
		return nil, err
	}
	slots, err := bindings(kernel, shader.AnnotationArgParams, shader.AnnotationArgAverage, shader.AnnotationArgDisplay)
	if err != nil {
		return nil, err
	}
	if err := registerCompute(r, TonemapPipelineKey, kernel); err != nil {
		return nil, err
	}
	block, err := params.NewBlock[params.TonemapParams](r, "Tonemap Params", params.TonemapLayout)
	if err != nil {
		return nil, err
	}
	t := &tonemapStage{r: r, kernel: kernel, block: block, slots: slots}
	if err := t.Resize(average); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (t *tonemapStage) Tonemap(cmd renderer.CommandSequence, p params.RenderParameters, ts *renderer.PassTimestamps) error {
	t.block.Refresh(p.Tonemap())
	if err := cmd.DispatchCompute(TonemapPipelineKey, t.provider, Tiling(t.display.Width(), t.display.Height()), ts); err != nil {
		return fmt.Errorf("tonemap: %w", err)
	}
	return nil
}

func (t *tonemapStage) Display() resource.Texture {
	return t.display
}

func (t *tonemapStage) Resize(average resource.Texture) error {
	display, err := createTarget(t.r, "Display", average.Width(), average.Height(), DisplayFormat)
	if err != nil {
		return err
	}
	provider, err := initGroup(t.r, "Tonemap", t.kernel,
		bind_group_provider.WithBuffer(t.slots[shader.AnnotationArgParams], t.block.Buffer()),
		bind_group_provider.WithTexture(t.slots[shader.AnnotationArgAverage], average),
		bind_group_provider.WithTexture(t.slots[shader.AnnotationArgDisplay], display),
	)
	if err != nil {
		display.Release()
		return err
	}
	t.releaseTargets()
	t.display = display
	t.provider = provider
	return nil
}

func (t *tonemapStage) releaseTargets() {
	if t.provider != nil {
		t.provider.Release()
		t.provider = nil
	}
	releaseTextures(t.display)
	t.display = nil
}

func (t *tonemapStage) Release() {
	t.releaseTargets()
	if t.block != nil {
		t.block.Release()
		t.block = nil
	}
}
