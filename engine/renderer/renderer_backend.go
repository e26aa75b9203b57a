package renderer

import (
	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// Progressive accumulation converges fastest in this mode.
	PresentModeUncapped
)

// PassTimestamps asks the backend to write a timestamp at the start and end of a pass.
type PassTimestamps struct {
	QuerySet   resource.QuerySet
	BeginIndex uint32
	EndIndex   uint32
}

// RendererBackend is the device-facing half of the Renderer. The Renderer resolves pipeline
// keys and submission hooks, then forwards everything else here.
type RendererBackend interface {
	// ConfigureSurface (re)creates the swapchain at the given size.
	ConfigureSurface(width, height int)

	// SetPresentMode takes effect on the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	// SupportsTimestamps reports whether pass timestamp writes are available on the device.
	SupportsTimestamps() bool

	RegisterComputePipeline(p pipeline.Pipeline) error
	RegisterRenderPipeline(p pipeline.Pipeline) error

	CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error)
	CreateTexture(desc resource.TextureDescriptor) (resource.Texture, error)
	CreateQuerySet(label string, count uint32) (resource.QuerySet, error)

	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error
	InitTextureView(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error
	InitSampler(provider bind_group_provider.BindGroupProvider, binding int, samplerStagingData common.SamplerStagingData) error
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginCommands opens a command encoder for one frame.
	BeginCommands() (CommandEncoder, error)

	// Submit finishes the encoder and submits it to the queue.
	Submit(enc CommandEncoder) error

	// MapRead starts an asynchronous read mapping of the first size bytes of buf. fn receives a
	// copy of the mapped bytes once the device has finished with the buffer, after which the
	// buffer is unmapped again. fn is always called from Poll, never from MapRead.
	MapRead(buf resource.Buffer, size uint64, fn func(data []byte, err error)) error

	// Poll processes device callbacks without blocking.
	Poll()

	// Present presents the surface texture acquired by the last fullscreen draw, if any.
	Present()

	// Release frees the device and everything created on it.
	Release()
}

// CommandEncoder records the passes of one frame in submission order.
type CommandEncoder interface {
	// DispatchCompute encodes a compute pass binding provider at group 0.
	DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workgroups [3]uint32, ts *PassTimestamps) error

	// DrawFullscreen encodes a render pass into the surface texture drawing a 6 vertex quad.
	DrawFullscreen(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, ts *PassTimestamps) error

	ResolveQuerySet(qs resource.QuerySet, first, count uint32, dst resource.Buffer, dstOffset uint64) error
	CopyBufferToBuffer(src resource.Buffer, srcOffset uint64, dst resource.Buffer, dstOffset, size uint64) error

	// CopyTextureToBuffer copies the whole texture into dst with the given row pitch.
	CopyTextureToBuffer(src resource.Texture, dst resource.Buffer, bytesPerRow uint32) error

	// Release drops the recorded passes without submitting them.
	Release()
}
