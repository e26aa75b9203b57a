package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
)

// releaser is satisfied by every device object the renderer stores on a provider.
type releaser interface {
	Release()
}

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string

	// bindGroup and bindGroupLayout are backend objects populated by Renderer.InitBindGroup.
	bindGroup       any
	bindGroupLayout any

	// buffers, textures and samplers hold the resources bound at each binding index.
	buffers  map[int]resource.Buffer
	textures map[int]resource.Texture
	samplers map[int]resource.Sampler

	// owned marks binding indices whose resources this provider releases.
	// Everything else is borrowed from a stage that outlives the bind group.
	owned map[int]bool
}

// BindGroupProvider describes the resources bound to one bind group of a kernel and holds the
// created bind group once the Renderer has initialized it.
//
// Usage pattern:
//  1. A stage creates a provider and sets the textures, samplers and buffers it already owns
//  2. The stage calls Renderer.InitBindGroup(provider, descriptor) which creates any missing
//     uniform buffers from the descriptor (marking them owned) and the bind group itself
//  3. The stage passes the provider to CommandSequence.DispatchCompute or DrawFullscreen
//
// Several providers may share the same texture, as the accumulation ping-pong groups do.
// Shared resources stay borrowed so releasing one provider never frees a texture another still binds.
type BindGroupProvider interface {
	// Release releases the bind group, its layout, and any resources this provider owns.
	Release()

	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// BindGroup returns the backend bind group object, or nil before InitBindGroup.
	//
	// Returns:
	//   - any: the bind group, a *wgpu.BindGroup for the WebGPU backend
	BindGroup() any

	// BindGroupLayout returns the backend bind group layout object, or nil before InitBindGroup.
	//
	// Returns:
	//   - any: the bind group layout
	BindGroupLayout() any

	// Buffer returns the buffer bound at binding, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - resource.Buffer: the buffer or nil
	Buffer(binding int) resource.Buffer

	// Texture returns the texture bound at binding, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - resource.Texture: the texture or nil
	Texture(binding int) resource.Texture

	// Sampler returns the sampler bound at binding, or nil if not set.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - resource.Sampler: the sampler or nil
	Sampler(binding int) resource.Sampler

	// SetBindGroup stores the created bind group. Called by Renderer.InitBindGroup.
	SetBindGroup(bg any)

	// SetBindGroupLayout stores the created bind group layout. Called by Renderer.InitBindGroup.
	SetBindGroupLayout(bgl any)

	// SetBuffer binds a borrowed buffer.
	SetBuffer(binding int, buf resource.Buffer)

	// SetTexture binds a borrowed texture.
	SetTexture(binding int, tex resource.Texture)

	// SetSampler binds a borrowed sampler.
	SetSampler(binding int, s resource.Sampler)

	// Own transfers ownership of whatever is bound at binding to this provider,
	// so Release frees it.
	//
	// Parameters:
	//   - binding: the binding index
	Own(binding int)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: a debug label used for every backend object created for this provider
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		buffers:  make(map[int]resource.Buffer),
		textures: make(map[int]resource.Texture),
		samplers: make(map[int]resource.Sampler),
		owned:    make(map[int]bool),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) BindGroup() any {
	return p.bindGroup
}

func (p *bindGroupProvider) BindGroupLayout() any {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) Buffer(binding int) resource.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Texture(binding int) resource.Texture {
	return p.textures[binding]
}

func (p *bindGroupProvider) Sampler(binding int) resource.Sampler {
	return p.samplers[binding]
}

func (p *bindGroupProvider) SetBindGroup(bg any) {
	p.bindGroup = bg
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl any) {
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBuffer(binding int, buf resource.Buffer) {
	p.buffers[binding] = buf
}

func (p *bindGroupProvider) SetTexture(binding int, tex resource.Texture) {
	p.textures[binding] = tex
}

func (p *bindGroupProvider) SetSampler(binding int, s resource.Sampler) {
	p.samplers[binding] = s
}

func (p *bindGroupProvider) Own(binding int) {
	p.owned[binding] = true
}

func (p *bindGroupProvider) Release() {
	for binding := range p.owned {
		if buf, ok := p.buffers[binding]; ok && buf != nil {
			buf.Release()
		}
		if tex, ok := p.textures[binding]; ok && tex != nil {
			tex.Release()
		}
		if s, ok := p.samplers[binding]; ok && s != nil {
			s.Release()
		}
	}
	clear(p.buffers)
	clear(p.textures)
	clear(p.samplers)
	clear(p.owned)

	if r, ok := p.bindGroup.(releaser); ok && r != nil {
		r.Release()
	}
	p.bindGroup = nil
	if r, ok := p.bindGroupLayout.(releaser); ok && r != nil {
		r.Release()
	}
	p.bindGroupLayout = nil
}
