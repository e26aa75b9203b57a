// Package stage holds the GPU passes of the progressive path tracer: trace, accumulate,
// tonemap and present. Each stage owns its pipeline, bind groups and output textures.
package stage

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/raytrace.wgsl
var raytraceSource string

//go:embed assets/accumulate.wgsl
var accumulateSource string

//go:embed assets/tonemap.wgsl
var tonemapSource string

//go:embed assets/fullscreen.wgsl
var fullscreenSource string

// ErrLayoutMismatch is returned by stage constructors when a kernel disagrees with the host
// about its workgroup tile or the size of its parameter record.
var ErrLayoutMismatch = errors.New("kernel layout mismatch")

// TileSize is the edge of the square workgroup every compute kernel declares.
const TileSize = 16

// Pipeline keys registered with the renderer.
const (
	TracePipelineKey      = "trace"
	AccumulatePipelineKey = "accumulate"
	TonemapPipelineKey    = "tonemap"
	PresentPipelineKey    = "present"
)

// SceneInclude is the include key the trace kernel uses for the compiled scene block.
const SceneInclude shader.AnnotationArg = "scene"

// Formats of the textures produced by the stages.
const (
	RadianceFormat = wgpu.TextureFormatRGBA16Float
	DisplayFormat  = wgpu.TextureFormatRGBA8Unorm
)

var log = logger.New("stage")

// Tiling returns the workgroup grid that covers a width x height image with TileSize tiles.
//
// Parameters:
//   - width: the image width in pixels
//   - height: the image height in pixels
//
// Returns:
//   - [3]uint32: the dispatch size
func Tiling(width, height uint32) [3]uint32 {
	return common.DispatchSize(width, height, TileSize)
}

// StageBuilderOption is a functional option shared by every stage constructor.
type StageBuilderOption func(*options)

type options struct {
	validate bool
	source   string
}

// WithValidation runs the assembled kernel through the WGSL validator before the pipeline is created.
//
// Parameters:
//   - enabled: whether to validate
//
// Returns:
//   - StageBuilderOption: option function to apply
func WithValidation(enabled bool) StageBuilderOption {
	return func(o *options) {
		o.validate = enabled
	}
}

// WithKernelSource replaces the embedded kernel with src. The replacement must keep the
// resource names of the kernel it replaces.
//
// Parameters:
//   - src: WGSL source with oxy annotations
//
// Returns:
//   - StageBuilderOption: option function to apply
func WithKernelSource(src string) StageBuilderOption {
	return func(o *options) {
		o.source = src
	}
}

func newOptions(defaultSource string, opts []StageBuilderOption) options {
	o := options{source: defaultSource}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// paramsInclude exposes a parameter layout to the pre-processor under key.
func paramsInclude(key string, layout *params.Layout) map[shader.AnnotationArg]shader.Include {
	return map[shader.AnnotationArg]shader.Include{
		shader.AnnotationArg(key): {Source: layout.WGSL(), Type: layout.Name},
	}
}

// newKernel assembles a compute kernel and checks it against the host side tiling and layout.
func newKernel(key string, layout *params.Layout, includes map[shader.AnnotationArg]shader.Include, o options) (shader.Shader, error) {
	s, err := shader.NewShader(key, shader.ShaderTypeCompute, o.source,
		shader.WithIncludes(includes),
		shader.WithValidation(o.validate),
	)
	if err != nil {
		return nil, err
	}
	if ws := s.WorkgroupSize(); ws != [3]uint32{TileSize, TileSize, 1} {
		return nil, fmt.Errorf("%w: %s declares workgroup size %v, dispatch uses %dx%d tiles", ErrLayoutMismatch, key, ws, TileSize, TileSize)
	}
	size, ok := s.StructSize(layout.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not declare %s", ErrLayoutMismatch, key, layout.Name)
	}
	if size != layout.Size {
		return nil, fmt.Errorf("%w: %s is %d bytes in %s, %d bytes on the host", ErrLayoutMismatch, layout.Name, size, key, layout.Size)
	}
	if g, _, ok := s.Binding(shader.AnnotationArgParams); !ok || g != 0 {
		return nil, fmt.Errorf("%w: %s has no params binding in group 0", ErrLayoutMismatch, key)
	}
	return s, nil
}

// registerCompute wraps s in a compute pipeline and registers it.
func registerCompute(r renderer.Renderer, key string, s shader.Shader) error {
	p := pipeline.NewPipeline(key, pipeline.PipelineTypeCompute, pipeline.WithComputeShader(s))
	return r.RegisterPipelines(p)
}

// binding resolves a resource slot in group 0.
func binding(s shader.Shader, res shader.AnnotationArg) (int, error) {
	g, b, ok := s.Binding(res)
	if !ok || g != 0 {
		return -1, fmt.Errorf("%s: no %s binding in group 0", s.Key(), res)
	}
	return b, nil
}

// bindings resolves several resource slots of s at once.
func bindings(s shader.Shader, res ...shader.AnnotationArg) (map[shader.AnnotationArg]int, error) {
	out := make(map[shader.AnnotationArg]int, len(res))
	for _, r := range res {
		b, err := binding(s, r)
		if err != nil {
			return nil, err
		}
		out[r] = b
	}
	return out, nil
}

// createTarget allocates a texture a kernel writes as storage and later passes sample.
func createTarget(r renderer.Renderer, label string, width, height uint32, format wgpu.TextureFormat) (resource.Texture, error) {
	return r.CreateTexture(resource.TextureDescriptor{
		Label:  label,
		Width:  width,
		Height: height,
		Format: format,
		Usage:  wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
	})
}

// initGroup builds the group 0 bind group of s on a fresh provider.
func initGroup(r renderer.Renderer, label string, s shader.Shader, opts ...bind_group_provider.BindGroupProviderOption) (bind_group_provider.BindGroupProvider, error) {
	provider := bind_group_provider.NewBindGroupProvider(label, opts...)
	if err := r.InitBindGroup(provider, s.BindGroupLayoutDescriptor(0)); err != nil {
		provider.Release()
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return provider, nil
}

func releaseTextures(textures ...resource.Texture) {
	for _, t := range textures {
		if t != nil {
			t.Release()
		}
	}
}
