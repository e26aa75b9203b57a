package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
)

// TraceStage dispatches the path tracing kernel into the raw radiance texture.
type TraceStage interface {
	// Trace refreshes the trace parameters and, unless the sample budget is spent, records the
	// trace dispatch. The radiance texture is overwritten, never cleared.
	//
	// Parameters:
	//   - cmd: the frame's command sequence
	//   - p: the frame's settings, with SampleCount set to the accumulated count
	//   - ts: optional timestamp writes for the pass
	//
	// Returns:
	//   - bool: true if a dispatch was recorded
	//   - error: an error if p does not match the texture size or recording fails
	Trace(cmd renderer.CommandSequence, p params.RenderParameters, ts *renderer.PassTimestamps) (bool, error)

	// Resize recreates the radiance texture and the bind group.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: an error if the texture or bind group cannot be created
	Resize(width, height uint32) error

	// Radiance returns the raw per-frame radiance texture.
	Radiance() resource.Texture

	// Tiling returns the current dispatch size.
	Tiling() [3]uint32

	// Dispatches returns how many trace passes have been recorded.
	Dispatches() uint64

	// Release frees the stage's textures, buffers and bind group.
	Release()
}

type traceStage struct {
	r      renderer.Renderer
	kernel shader.Shader
	block  *params.Block[params.TraceParams]

	noise    bind_group_provider.BindGroupProvider
	provider bind_group_provider.BindGroupProvider
	radiance resource.Texture

	paramsBinding   int
	noiseBinding    int
	radianceBinding int

	tiling     [3]uint32
	dispatches uint64
}

var _ TraceStage = &traceStage{}

// NewTraceStage compiles the trace kernel with the scene block, uploads the noise texture and
// allocates the radiance texture.
//
// Parameters:
//   - r: the renderer
//   - compiledScene: the WGSL constant block produced by scene.Compile
//   - noise: RGBA8 noise pixels used to decorrelate the per-pixel random streams
//   - width: the image width in pixels
//   - height: the image height in pixels
//   - opts: stage options
//
// Returns:
//   - TraceStage: the stage
//   - error: ErrLayoutMismatch if the kernel disagrees with the host, or a device error
func NewTraceStage(r renderer.Renderer, compiledScene string, noise common.TextureStagingData, width, height uint32, opts ...StageBuilderOption) (TraceStage, error) {
	o := newOptions(raytraceSource, opts)
	includes := paramsInclude(params.TraceInclude, params.TraceLayout)
	includes[SceneInclude] = shader.Include{Source: compiledScene}

	kernel, err := newKernel(TracePipelineKey, params.TraceLayout, includes, o)
	if err != nil {
		return nil, err
	}
	slots, err := bindings(kernel, shader.AnnotationArgParams, shader.AnnotationArgNoise, shader.AnnotationArgRadiance)
	if err != nil {
		return nil, err
	}
	if err := registerCompute(r, TracePipelineKey, kernel); err != nil {
		return nil, err
	}

	block, err := params.NewBlock[params.TraceParams](r, "Trace Params", params.TraceLayout)
	if err != nil {
		return nil, err
	}
	t := &traceStage{
		r:               r,
		kernel:          kernel,
		block:           block,
		noise:           bind_group_provider.NewBindGroupProvider("Noise"),
		paramsBinding:   slots[shader.AnnotationArgParams],
		noiseBinding:    slots[shader.AnnotationArgNoise],
		radianceBinding: slots[shader.AnnotationArgRadiance],
	}
	if err := r.InitTextureView(t.noise, 0, noise); err != nil {
		t.Release()
		return nil, fmt.Errorf("noise texture: %w", err)
	}
	if err := t.Resize(width, height); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (t *traceStage) Trace(cmd renderer.CommandSequence, p params.RenderParameters, ts *renderer.PassTimestamps) (bool, error) {
	if p.TextureWidth != t.radiance.Width() || p.TextureHeight != t.radiance.Height() {
		return false, fmt.Errorf("trace: parameters are %dx%d, radiance texture is %dx%d",
			p.TextureWidth, p.TextureHeight, t.radiance.Width(), t.radiance.Height())
	}
	t.block.Refresh(p.Trace())
	if p.Converged() {
		return false, nil
	}
	if err := cmd.DispatchCompute(TracePipelineKey, t.provider, t.tiling, ts); err != nil {
		return false, fmt.Errorf("trace: %w", err)
	}
	t.dispatches++
	return true, nil
}

func (t *traceStage) Resize(width, height uint32) error {
	radiance, err := createTarget(t.r, "Radiance", width, height, RadianceFormat)
	if err != nil {
		return err
	}
	provider, err := initGroup(t.r, "Trace", t.kernel,
		bind_group_provider.WithBuffer(t.paramsBinding, t.block.Buffer()),
		bind_group_provider.WithTexture(t.noiseBinding, t.noise.Texture(0)),
		bind_group_provider.WithTexture(t.radianceBinding, radiance),
	)
	if err != nil {
		radiance.Release()
		return err
	}
	t.releaseTargets()
	t.radiance = radiance
	t.provider = provider
	t.tiling = Tiling(width, height)
	log.Debugf("trace: %dx%d, %v workgroups", width, height, t.tiling)
	return nil
}

func (t *traceStage) Radiance() resource.Texture {
	return t.radiance
}

func (t *traceStage) Tiling() [3]uint32 {
	return t.tiling
}

func (t *traceStage) Dispatches() uint64 {
	return t.dispatches
}

func (t *traceStage) releaseTargets() {
	if t.provider != nil {
		t.provider.Release()
		t.provider = nil
	}
	releaseTextures(t.radiance)
	t.radiance = nil
}

func (t *traceStage) Release() {
	t.releaseTargets()
	if t.noise != nil {
		t.noise.Release()
		t.noise = nil
	}
	if t.block != nil {
		t.block.Release()
		t.block = nil
	}
}
