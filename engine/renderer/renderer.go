package renderer

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/window"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrPipelineNotFound is returned when a pass references a key that was never registered.
var ErrPipelineNotFound = errors.New("pipeline not found")

// ErrSequenceSubmitted is returned when a CommandSequence is used after Submit.
var ErrSequenceSubmitted = errors.New("command sequence already submitted")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	requestTimestamps    bool
	pendingPresentMode   *PresentMode
}

// Renderer defines the interface for the rendering system.
//
// This is a high-level API designed to simplify rendering tasks into a streamlined and idiomatic flow.
// The Renderer manages a cache of pipelines keyed by name, hands out opaque GPU resources, and records
// each frame into a CommandSequence that is submitted as a single command buffer.
// The Renderer also implements a backend which allows for multiple backend API implementations to exist.
type Renderer interface {
	// Pipeline retrieves the cached Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the pipeline cache.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines registers one or more pipelines by creating the corresponding GPU
	// pipeline objects (render or compute) via the backend, then caching them by PipelineKey.
	// Pipelines whose keys are already registered are skipped to avoid duplicate GPU resource creation.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: an error if pipeline creation fails
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	// A call to Resize is required after changing this for the new mode to take effect.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// SupportsTimestamps reports whether the device accepted the timestamp query feature.
	//
	// Returns:
	//   - bool: true if PassTimestamps may be passed to the CommandSequence
	SupportsTimestamps() bool

	// CreateBuffer creates a device buffer.
	//
	// Parameters:
	//   - desc: the label, size and usage of the buffer
	//
	// Returns:
	//   - resource.Buffer: the buffer, owned by the caller
	//   - error: an error if the device rejects the descriptor
	CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error)

	// CreateTexture creates a 2-D device texture with a default view.
	//
	// Parameters:
	//   - desc: the label, size, format and usage of the texture
	//
	// Returns:
	//   - resource.Texture: the texture, owned by the caller
	//   - error: an error if the device rejects the descriptor
	CreateTexture(desc resource.TextureDescriptor) (resource.Texture, error)

	// CreateQuerySet creates a timestamp query set.
	//
	// Parameters:
	//   - label: a debug label
	//   - count: the number of timestamp slots
	//
	// Returns:
	//   - resource.QuerySet: the query set, owned by the caller
	//   - error: an error if timestamps are unsupported or creation fails
	CreateQuerySet(label string, count uint32) (resource.QuerySet, error)

	// InitBindGroup creates the bind group described by descriptor and stores it on the provider.
	// Textures and samplers must already be set on the provider. Missing uniform and storage
	// buffers are created from the entry's MinBindingSize and owned by the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created bind group on
	//   - descriptor: the layout descriptor defining the bind group entries
	//
	// Returns:
	//   - error: an error if a binding has no resource or bind group creation fails
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error

	// InitTextureView creates a sampled RGBA8 texture from staging data and binds it, owned, on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created texture on
	//   - binding: the binding index for this texture
	//   - stagingData: the pixel data and dimensions for the texture
	//
	// Returns:
	//   - error: an error if the staging data is malformed or texture creation fails
	InitTextureView(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error

	// InitSampler creates a sampler and binds it, owned, on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created sampler on
	//   - binding: the binding index for this sampler
	//   - samplerStagingData: the sampler configuration
	//
	// Returns:
	//   - error: an error if sampler creation fails
	InitSampler(provider bind_group_provider.BindGroupProvider, binding int, samplerStagingData common.SamplerStagingData) error

	// WriteBuffers schedules queue writes. They land before the next submitted command buffer executes.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// BeginCommands opens a CommandSequence for one frame.
	//
	// Returns:
	//   - CommandSequence: the sequence to record passes into
	//   - error: an error if the command encoder could not be created
	BeginCommands() (CommandSequence, error)

	// Submit submits the recorded sequence as one command buffer, then runs its OnSubmitted hooks
	// in registration order.
	//
	// Parameters:
	//   - seq: a sequence returned by BeginCommands
	//
	// Returns:
	//   - error: an error if the sequence was already submitted or the submission failed
	Submit(seq CommandSequence) error

	// MapRead maps the first size bytes of buf for reading. fn receives a copy of the data from a
	// later Poll, after which the buffer is unmapped and may be reused.
	//
	// Parameters:
	//   - buf: a buffer created with MapRead usage
	//   - size: the number of bytes to read
	//   - fn: the completion callback
	//
	// Returns:
	//   - error: an error if the map request could not be issued
	MapRead(buf resource.Buffer, size uint64, fn func(data []byte, err error)) error

	// Poll processes finished device work and runs pending MapRead callbacks.
	Poll()

	// Present presents the surface texture drawn by the current frame.
	Present()

	// Release releases every registered pipeline and the device.
	Release()
}

// CommandSequence records the passes of one frame. Passes run on the device in the order they
// are recorded. A sequence is single use.
type CommandSequence interface {
	// DispatchCompute encodes a compute pass using the cached pipeline and the provider's bind group at group 0.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached compute Pipeline to use
	//   - provider: the BindGroupProvider whose BindGroup will be set on the compute pass
	//   - workgroups: the number of workgroups to dispatch in the x, y, and z dimensions
	//   - ts: optional timestamp writes for the pass, nil to skip
	//
	// Returns:
	//   - error: an error if the pipeline is not found or not a compute pipeline
	DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workgroups [3]uint32, ts *PassTimestamps) error

	// DrawFullscreen encodes a render pass into the surface texture that draws a 6 vertex quad.
	// The surface texture is acquired on the first call of the frame.
	//
	// Parameters:
	//   - pipelineKey: the unique identifier for the cached render Pipeline to use
	//   - provider: the BindGroupProvider whose BindGroup will be set at group 0
	//   - ts: optional timestamp writes for the pass, nil to skip
	//
	// Returns:
	//   - error: an error if the pipeline is not found or the surface texture is unavailable
	DrawFullscreen(pipelineKey string, provider bind_group_provider.BindGroupProvider, ts *PassTimestamps) error

	// ResolveQuerySet writes count timestamps starting at first into dst as little endian uint64 values.
	ResolveQuerySet(qs resource.QuerySet, first, count uint32, dst resource.Buffer, dstOffset uint64) error

	// CopyBufferToBuffer copies size bytes between device buffers.
	CopyBufferToBuffer(src resource.Buffer, srcOffset uint64, dst resource.Buffer, dstOffset, size uint64) error

	// CopyTextureToBuffer copies the whole texture into dst using the given row pitch, which must be a
	// multiple of 256.
	CopyTextureToBuffer(src resource.Texture, dst resource.Buffer, bytesPerRow uint32) error

	// OnSubmitted registers fn to run right after the sequence has been submitted.
	//
	// Parameters:
	//   - fn: the hook
	OnSubmitted(fn func())

	// Abandon releases the recorded passes without submitting them. OnSubmitted hooks never
	// run. It does nothing once the sequence has been submitted or abandoned, so it is safe to
	// defer right after BeginCommands.
	Abandon()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type and window.
// The surface descriptor is platform-specific and is obtained from Window.SurfaceDescriptor().
// When WithBackend is supplied the window may be nil.
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU)
//   - window: the window whose surface the renderer presents to
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, window window.Window, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	if r.backend == nil {
		switch backendType {
		case BackendTypeWGPU:
			fallthrough
		default:
			r.backend = newWGPURendererBackend(window.SurfaceDescriptor(), r.forceFallbackAdapter, r.requestTimestamps)
		}
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	if window != nil {
		r.backend.ConfigureSurface(window.Width(), window.Height())
	}
	return r
}

func (r *renderer) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) SupportsTimestamps() bool {
	return r.backend.SupportsTimestamps()
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.pipelineCache)
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		switch p.Type() {
		case pipeline.PipelineTypeCompute:
			if err := r.backend.RegisterComputePipeline(p); err != nil {
				return fmt.Errorf("register %s: %w", key, err)
			}
		case pipeline.PipelineTypeRender:
			if err := r.backend.RegisterRenderPipeline(p); err != nil {
				return fmt.Errorf("register %s: %w", key, err)
			}
		default:
			return fmt.Errorf("register %s: unknown pipeline type %v", key, p.Type())
		}
		r.pipelineCache[key] = p
	}
	return nil
}

func (r *renderer) CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error) {
	return r.backend.CreateBuffer(desc)
}

func (r *renderer) CreateTexture(desc resource.TextureDescriptor) (resource.Texture, error) {
	return r.backend.CreateTexture(desc)
}

func (r *renderer) CreateQuerySet(label string, count uint32) (resource.QuerySet, error) {
	if !r.backend.SupportsTimestamps() {
		return nil, fmt.Errorf("create %s: timestamp queries are not supported by this device", label)
	}
	return r.backend.CreateQuerySet(label, count)
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	return r.backend.InitBindGroup(provider, descriptor)
}

func (r *renderer) InitTextureView(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error {
	if !stagingData.Validate() {
		return fmt.Errorf("%s: texture staging data for binding %d does not match %dx%d", provider.Label(), binding, stagingData.Width, stagingData.Height)
	}
	return r.backend.InitTextureView(provider, binding, stagingData)
}

func (r *renderer) InitSampler(provider bind_group_provider.BindGroupProvider, binding int, samplerStagingData common.SamplerStagingData) error {
	return r.backend.InitSampler(provider, binding, samplerStagingData)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	r.backend.WriteBuffers(writes)
}

func (r *renderer) BeginCommands() (CommandSequence, error) {
	enc, err := r.backend.BeginCommands()
	if err != nil {
		return nil, err
	}
	return &commandSequence{r: r, enc: enc}, nil
}

func (r *renderer) Submit(seq CommandSequence) error {
	cs, ok := seq.(*commandSequence)
	if !ok || cs.r != r {
		return errors.New("submit: sequence was not created by this renderer")
	}
	if cs.submitted {
		return ErrSequenceSubmitted
	}
	cs.submitted = true
	if err := r.backend.Submit(cs.enc); err != nil {
		return err
	}
	for _, fn := range cs.hooks {
		fn()
	}
	return nil
}

func (r *renderer) MapRead(buf resource.Buffer, size uint64, fn func(data []byte, err error)) error {
	if size > buf.Size() {
		return fmt.Errorf("map %s: %d bytes requested from a %d byte buffer", buf.Label(), size, buf.Size())
	}
	return r.backend.MapRead(buf, size, fn)
}

func (r *renderer) Poll() {
	r.backend.Poll()
}

func (r *renderer) Present() {
	r.backend.Present()
}

func (r *renderer) Release() {
	r.mu.Lock()
	for _, p := range r.pipelineCache {
		p.Release()
	}
	clear(r.pipelineCache)
	r.mu.Unlock()
	r.backend.Release()
}

// commandSequence resolves pipeline keys against the renderer cache and forwards to the backend encoder.
type commandSequence struct {
	r         *renderer
	enc       CommandEncoder
	hooks     []func()
	submitted bool
}

var _ CommandSequence = &commandSequence{}

func (c *commandSequence) lookup(key string, want pipeline.PipelineType) (pipeline.Pipeline, error) {
	if c.submitted {
		return nil, ErrSequenceSubmitted
	}
	p := c.r.Pipeline(key)
	if p == nil {
		return nil, fmt.Errorf("%w: %q", ErrPipelineNotFound, key)
	}
	if p.Type() != want {
		return nil, fmt.Errorf("pipeline %q is a %v pipeline, not %v", key, p.Type(), want)
	}
	return p, nil
}

func (c *commandSequence) DispatchCompute(pipelineKey string, provider bind_group_provider.BindGroupProvider, workgroups [3]uint32, ts *PassTimestamps) error {
	p, err := c.lookup(pipelineKey, pipeline.PipelineTypeCompute)
	if err != nil {
		return err
	}
	return c.enc.DispatchCompute(p, provider, workgroups, ts)
}

func (c *commandSequence) DrawFullscreen(pipelineKey string, provider bind_group_provider.BindGroupProvider, ts *PassTimestamps) error {
	p, err := c.lookup(pipelineKey, pipeline.PipelineTypeRender)
	if err != nil {
		return err
	}
	return c.enc.DrawFullscreen(p, provider, ts)
}

func (c *commandSequence) ResolveQuerySet(qs resource.QuerySet, first, count uint32, dst resource.Buffer, dstOffset uint64) error {
	if c.submitted {
		return ErrSequenceSubmitted
	}
	if first+count > qs.Count() {
		return fmt.Errorf("resolve %s: queries %d..%d out of range", qs.Label(), first, first+count)
	}
	if dstOffset+uint64(count)*8 > dst.Size() {
		return fmt.Errorf("resolve %s: %s is too small", qs.Label(), dst.Label())
	}
	return c.enc.ResolveQuerySet(qs, first, count, dst, dstOffset)
}

func (c *commandSequence) CopyBufferToBuffer(src resource.Buffer, srcOffset uint64, dst resource.Buffer, dstOffset, size uint64) error {
	if c.submitted {
		return ErrSequenceSubmitted
	}
	if srcOffset+size > src.Size() || dstOffset+size > dst.Size() {
		return fmt.Errorf("copy %s -> %s: %d bytes out of range", src.Label(), dst.Label(), size)
	}
	return c.enc.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

func (c *commandSequence) CopyTextureToBuffer(src resource.Texture, dst resource.Buffer, bytesPerRow uint32) error {
	if c.submitted {
		return ErrSequenceSubmitted
	}
	if bytesPerRow%256 != 0 || bytesPerRow < src.Width()*resource.BytesPerTexel(src.Format()) {
		return fmt.Errorf("copy %s: invalid row pitch %d", src.Label(), bytesPerRow)
	}
	if uint64(bytesPerRow)*uint64(src.Height()) > dst.Size() {
		return fmt.Errorf("copy %s: %s is too small", src.Label(), dst.Label())
	}
	return c.enc.CopyTextureToBuffer(src, dst, bytesPerRow)
}

func (c *commandSequence) OnSubmitted(fn func()) {
	c.hooks = append(c.hooks, fn)
}

func (c *commandSequence) Abandon() {
	if c.submitted {
		return
	}
	c.submitted = true
	c.hooks = nil
	c.enc.Release()
}

// MergeBindGroupLayouts combines the per-group layouts of a vertex and fragment shader, OR-ing the
// visibility of bindings declared in both. Render pipelines and their bind groups must both be built
// from the merged layout.
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func MergeBindGroupLayouts(vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	return mergeBindGroupLayouts(vertexLayouts, fragmentLayouts)
}
