package stage

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PresentationStage draws the display texture over the whole surface.
type PresentationStage interface {
	// Present records the fullscreen draw into the frame's surface texture.
	//
	// Parameters:
	//   - cmd: the frame's command sequence
	//   - ts: optional timestamp writes for the pass
	//
	// Returns:
	//   - error: renderer.ErrSurfaceUnavailable if the surface must be reconfigured, or a recording error
	Present(cmd renderer.CommandSequence, ts *renderer.PassTimestamps) error

	// Rebind points the stage at a new display texture.
	//
	// Parameters:
	//   - display: the tonemap stage's output texture
	//
	// Returns:
	//   - error: an error if the bind group cannot be created
	Rebind(display resource.Texture) error

	// Release frees the sampler and bind group.
	Release()
}

type presentationStage struct {
	r        renderer.Renderer
	layout   wgpu.BindGroupLayoutDescriptor
	slots    map[shader.AnnotationArg]int
	provider bind_group_provider.BindGroupProvider
}

var _ PresentationStage = &presentationStage{}

// NewPresentationStage compiles the fullscreen shaders and binds the display texture with a linear sampler.
//
// Parameters:
//   - r: the renderer
//   - display: the tonemap stage's output texture
//   - opts: stage options
//
// Returns:
//   - PresentationStage: the stage
//   - error: a shader or device error
func NewPresentationStage(r renderer.Renderer, display resource.Texture, opts ...StageBuilderOption) (PresentationStage, error) {
	o := newOptions(fullscreenSource, opts)
	vs, err := shader.NewShader(PresentPipelineKey+"_vs", shader.ShaderTypeVertex, o.source, shader.WithValidation(o.validate))
	if err != nil {
		return nil, err
	}
	fs, err := shader.NewShader(PresentPipelineKey+"_fs", shader.ShaderTypeFragment, o.source)
	if err != nil {
		return nil, err
	}
	slots, err := bindings(fs, shader.AnnotationArgDisplay, shader.AnnotationArgDisplaySampler)
	if err != nil {
		return nil, err
	}
	p := pipeline.NewPipeline(PresentPipelineKey, pipeline.PipelineTypeRender,
		pipeline.WithVertexShader(vs),
		pipeline.WithFragmentShader(fs),
	)
	if err := r.RegisterPipelines(p); err != nil {
		return nil, err
	}

	s := &presentationStage{
		r:        r,
		layout:   renderer.MergeBindGroupLayouts(vs.BindGroupLayoutDescriptors(), fs.BindGroupLayoutDescriptors())[0],
		slots:    slots,
	}
	if err := s.Rebind(display); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *presentationStage) Present(cmd renderer.CommandSequence, ts *renderer.PassTimestamps) error {
	if err := cmd.DrawFullscreen(PresentPipelineKey, s.provider, ts); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

func (s *presentationStage) Rebind(display resource.Texture) error {
	provider := bind_group_provider.NewBindGroupProvider("Present",
		bind_group_provider.WithTexture(s.slots[shader.AnnotationArgDisplay], display),
	)
	err := s.r.InitSampler(provider, s.slots[shader.AnnotationArgDisplaySampler], common.SamplerStagingData{
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		MipmapFilter: wgpu.MipmapFilterModeLinear,
		LodMaxClamp:  1,
	})
	if err == nil {
		err = s.r.InitBindGroup(provider, s.layout)
	}
	if err != nil {
		provider.Release()
		return fmt.Errorf("present: %w", err)
	}
	if s.provider != nil {
		s.provider.Release()
	}
	s.provider = provider
	return nil
}

func (s *presentationStage) Release() {
	if s.provider != nil {
		s.provider.Release()
		s.provider = nil
	}
}
