package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrSurfaceUnavailable is returned when the swapchain texture cannot be acquired, usually
// because the surface is outdated after a resize or minimise.
var ErrSurfaceUnavailable = errors.New("surface texture unavailable")

var log = logger.New("renderer")

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)
	timestamps    bool

	// Surface texture held between the fullscreen draw and Present.
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	// Outstanding MapRead requests, completed from Poll.
	maps []*pendingMap
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter, requestTimestamps bool) *wgpuRendererBackendImpl {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:          &sync.Mutex{},
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		panic(err)
	}
	w.adapter = a

	var features []wgpu.FeatureName
	if requestTimestamps {
		if a.HasFeature(wgpu.FeatureNameTimestampQuery) {
			features = append(features, wgpu.FeatureNameTimestampQuery)
			w.timestamps = true
		} else {
			log.Warning("adapter does not support timestamp queries, GPU pass timing disabled")
		}
	}

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: features,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		panic(err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	format := capabilities.Formats[0]
	// The tonemap kernel applies gamma itself, so prefer a linear swapchain format.
	for _, f := range capabilities.Formats {
		if f == wgpu.TextureFormatBGRA8Unorm || f == wgpu.TextureFormatRGBA8Unorm {
			format = f
			break
		}
	}
	b.surfaceFormat = &format

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) SupportsTimestamps() bool {
	return b.timestamps
}

func (b *wgpuRendererBackendImpl) RegisterRenderPipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeVertex) == nil || p.Shader(shader.ShaderTypeFragment) == nil {
		return errors.New("both vertex and fragment shaders must be set to create a render pipeline")
	}
	if b.surfaceFormat == nil {
		return errors.New("surface must be configured before registering a render pipeline")
	}

	vertexShader := p.Shader(shader.ShaderTypeVertex)
	fragmentShader := p.Shader(shader.ShaderTypeFragment)

	vs, err := b.device.CreateShaderModule(vertexShader.Module())
	if err != nil {
		return err
	}
	defer vs.Release()
	fs, err := b.device.CreateShaderModule(fragmentShader.Module())
	if err != nil {
		return err
	}
	defer fs.Release()

	merged := mergeBindGroupLayouts(vertexShader.BindGroupLayoutDescriptors(), fragmentShader.BindGroupLayoutDescriptors())
	pipelineLayout, err := b.createPipelineLayout(p.PipelineKey(), merged)
	if err != nil {
		return err
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.PipelineKey() + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vs,
			EntryPoint: vertexShader.EntryPoint(),
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs,
			EntryPoint: fragmentShader.EntryPoint(),
			Targets: []wgpu.ColorTargetState{
				{
					Format:    *b.surfaceFormat,
					WriteMask: p.WriteMask(),
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.Topology(),
			FrontFace: p.FrontFace(),
			CullMode:  p.CullMode(),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	p.SetRenderPipeline(created)

	return nil
}

func (b *wgpuRendererBackendImpl) RegisterComputePipeline(p pipeline.Pipeline) error {
	if p.Shader(shader.ShaderTypeCompute) == nil {
		return errors.New("compute shader must be set to create a compute pipeline")
	}

	computeShader := p.Shader(shader.ShaderTypeCompute)
	s, err := b.device.CreateShaderModule(computeShader.Module())
	if err != nil {
		return err
	}
	defer s.Release()

	layout, err := b.createPipelineLayout(p.PipelineKey(), computeShader.BindGroupLayoutDescriptors())
	if err != nil {
		return err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  p.PipelineKey() + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: computeShader.EntryPoint(),
		},
	})
	if err != nil {
		return err
	}

	p.SetComputePipeline(created)

	return nil
}

// createPipelineLayout builds one bind group layout per declared group, leaving gaps empty.
func (b *wgpuRendererBackendImpl) createPipelineLayout(label string, descriptors map[int]wgpu.BindGroupLayoutDescriptor) (*wgpu.PipelineLayout, error) {
	maxGroup := -1
	for g := range descriptors {
		maxGroup = max(maxGroup, g)
	}
	bindGroupLayouts := make([]*wgpu.BindGroupLayout, maxGroup+1)
	for g := 0; g <= maxGroup; g++ {
		desc := descriptors[g]
		bgl, err := b.device.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		bindGroupLayouts[g] = bgl
	}

	return b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: bindGroupLayouts,
	})
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBuffer(desc)
}

func (b *wgpuRendererBackendImpl) createBuffer(desc resource.BufferDescriptor) (*wgpuBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has zero size", desc.Label)
	}
	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{buf: buf, desc: desc}, nil
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc resource.TextureDescriptor) (resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createTexture(desc)
}

func (b *wgpuRendererBackendImpl) createTexture(desc resource.TextureDescriptor) (*wgpuTexture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %s has zero extent", desc.Label)
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     desc.Usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        desc.Format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{tex: tex, view: view, desc: desc}, nil
}

func (b *wgpuRendererBackendImpl) CreateQuerySet(label string, count uint32) (resource.QuerySet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	qs, err := b.device.CreateQuerySet(&wgpu.QuerySetDescriptor{
		Label: label,
		Type:  wgpu.QueryTypeTimestamp,
		Count: count,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuQuerySet{qs: qs, label: label, count: count}, nil
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout, _ := provider.BindGroupLayout().(*wgpu.BindGroupLayout)
	if layout == nil {
		var err error
		layout, err = b.device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return err
		}
		provider.SetBindGroupLayout(layout)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		isTexture := entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined
		isStorageTexture := entry.StorageTexture.Format != wgpu.TextureFormatUndefined
		isSampler := entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined

		switch {
		case isTexture || isStorageTexture:
			tex, ok := provider.Texture(binding).(*wgpuTexture)
			if !ok || tex == nil || tex.view == nil {
				return fmt.Errorf("%s: texture binding %d has no texture", provider.Label(), binding)
			}
			if isStorageTexture && tex.desc.Format != entry.StorageTexture.Format {
				return fmt.Errorf("%s: storage binding %d expects %v, got %v", provider.Label(), binding, entry.StorageTexture.Format, tex.desc.Format)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tex.view,
			}
		case isSampler:
			samp, ok := provider.Sampler(binding).(*wgpuSampler)
			if !ok || samp == nil {
				return fmt.Errorf("%s: sampler binding %d has no sampler", provider.Label(), binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp.s,
			}
		default:
			var usage wgpu.BufferUsage
			switch entry.Buffer.Type {
			case wgpu.BufferBindingTypeUniform:
				usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
			case wgpu.BufferBindingTypeStorage, wgpu.BufferBindingTypeReadOnlyStorage:
				usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
			}

			buf, _ := provider.Buffer(binding).(*wgpuBuffer)
			if buf == nil {
				created, err := b.createBuffer(resource.BufferDescriptor{
					Label: fmt.Sprintf("%s Buffer %d", provider.Label(), binding),
					Size:  roundUp16(entry.Buffer.MinBindingSize),
					Usage: usage,
				})
				if err != nil {
					return err
				}
				provider.SetBuffer(binding, created)
				provider.Own(binding)
				buf = created
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf.buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)

	return nil
}

func (b *wgpuRendererBackendImpl) InitTextureView(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.createTexture(resource.TextureDescriptor{
		Label:  provider.Label() + " Texture",
		Width:  stagingData.Width,
		Height: stagingData.Height,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return err
	}

	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  stagingData.Width * 4,
			RowsPerImage: stagingData.Height,
		},
		&wgpu.Extent3D{
			Width:              stagingData.Width,
			Height:             stagingData.Height,
			DepthOrArrayLayers: 1,
		},
	)

	provider.SetTexture(binding, tex)
	provider.Own(binding)

	return nil
}

func (b *wgpuRendererBackendImpl) InitSampler(provider bind_group_provider.BindGroupProvider, binding int, samplerStagingData common.SamplerStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sd := samplerStagingData.WithDefaults()
	samp, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         provider.Label() + " Sampler",
		AddressModeU:  sd.AddressModeU,
		AddressModeV:  sd.AddressModeV,
		AddressModeW:  sd.AddressModeW,
		MagFilter:     sd.MagFilter,
		MinFilter:     sd.MinFilter,
		MipmapFilter:  sd.MipmapFilter,
		LodMinClamp:   sd.LodMinClamp,
		LodMaxClamp:   sd.LodMaxClamp,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	provider.SetSampler(binding, &wgpuSampler{s: samp})
	provider.Own(binding)

	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf, ok := w.Target().(*wgpuBuffer)
		if !ok || buf == nil || buf.buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf.buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) BeginCommands() (CommandEncoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	return &wgpuCommandEncoder{b: b, enc: encoder}, nil
}

func (b *wgpuRendererBackendImpl) Submit(enc CommandEncoder) error {
	e, ok := enc.(*wgpuCommandEncoder)
	if !ok {
		return errors.New("submit: foreign command encoder")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	defer e.enc.Release()
	commandBuffer, err := e.enc.Finish(nil)
	if err != nil {
		return err
	}
	defer commandBuffer.Release()
	b.queue.Submit(commandBuffer)
	return nil
}

// pendingMap tracks one MapRead request. status is written by the device callback during Poll.
type pendingMap struct {
	buf    *wgpuBuffer
	size   uint64
	fn     func([]byte, error)
	done   bool
	status wgpu.BufferMapAsyncStatus
}

func (b *wgpuRendererBackendImpl) MapRead(buf resource.Buffer, size uint64, fn func(data []byte, err error)) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok || wb.buf == nil {
		return fmt.Errorf("map: %s is not a live device buffer", buf.Label())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.ContainsFunc(b.maps, func(m *pendingMap) bool { return m.buf == wb }) {
		return fmt.Errorf("map: %s already has a map in flight", wb.Label())
	}
	m := &pendingMap{buf: wb, size: size, fn: fn}
	b.maps = append(b.maps, m)
	wb.buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		m.status = status
		m.done = true
	})
	return nil
}

func (b *wgpuRendererBackendImpl) Poll() {
	b.mu.Lock()
	b.device.Poll(false, nil)

	type completion struct {
		fn   func([]byte, error)
		data []byte
		err  error
	}
	var completed []completion
	b.maps = slices.DeleteFunc(b.maps, func(m *pendingMap) bool {
		if !m.done {
			return false
		}
		c := completion{fn: m.fn}
		if m.status != wgpu.BufferMapAsyncStatusSuccess {
			c.err = fmt.Errorf("map %s: status %v", m.buf.Label(), m.status)
		} else {
			c.data = slices.Clone(m.buf.buf.GetMappedRange(0, uint(m.size)))
			m.buf.buf.Unmap()
		}
		completed = append(completed, c)
		return true
	})
	b.mu.Unlock()

	// Callbacks may hand the buffer straight back to a pool, so they run without the lock.
	for _, c := range completed {
		c.fn(c.data, c.err)
	}
}

func (b *wgpuRendererBackendImpl) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// If no frame surface is held, nothing to present.
	if b.frameSurface == nil {
		return
	}

	b.surface.Present()
	b.releaseFrameSurface()
}

func (b *wgpuRendererBackendImpl) releaseFrameSurface() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

// acquireSurface returns the view of this frame's swapchain texture, acquiring it on first use.
func (b *wgpuRendererBackendImpl) acquireSurface() (*wgpu.TextureView, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameView != nil {
		return b.frameView, nil
	}
	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSurfaceUnavailable, err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return nil, err
	}
	b.frameSurface = surfaceTexture
	b.frameView = view
	return view, nil
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseFrameSurface()
	b.maps = nil
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// wgpuCommandEncoder records one frame. It is only used from the frame loop goroutine.
type wgpuCommandEncoder struct {
	b   *wgpuRendererBackendImpl
	enc *wgpu.CommandEncoder
}

var _ CommandEncoder = &wgpuCommandEncoder{}

func (e *wgpuCommandEncoder) Release() {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()

	if e.enc != nil {
		e.enc.Release()
		e.enc = nil
	}
}

func (e *wgpuCommandEncoder) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workgroups [3]uint32, ts *PassTimestamps) error {
	computePipeline, ok := p.Pipeline().(*wgpu.ComputePipeline)
	if !ok || computePipeline == nil {
		return fmt.Errorf("%s has no compute pipeline", p.PipelineKey())
	}
	bindGroup, ok := provider.BindGroup().(*wgpu.BindGroup)
	if !ok || bindGroup == nil {
		return fmt.Errorf("%s has no bind group", provider.Label())
	}

	desc := &wgpu.ComputePassDescriptor{Label: p.PipelineKey()}
	if ts != nil {
		qs, ok := ts.QuerySet.(*wgpuQuerySet)
		if !ok {
			return errors.New("foreign query set")
		}
		desc.TimestampWrites = &wgpu.ComputePassTimestampWrites{
			QuerySet:                  qs.qs,
			BeginningOfPassWriteIndex: ts.BeginIndex,
			EndOfPassWriteIndex:       ts.EndIndex,
		}
	}

	pass := e.enc.BeginComputePass(desc)
	pass.SetPipeline(computePipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(workgroups[0], workgroups[1], workgroups[2])
	pass.End()
	pass.Release()
	return nil
}

func (e *wgpuCommandEncoder) DrawFullscreen(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, ts *PassTimestamps) error {
	renderPipeline, ok := p.Pipeline().(*wgpu.RenderPipeline)
	if !ok || renderPipeline == nil {
		return fmt.Errorf("%s has no render pipeline", p.PipelineKey())
	}
	bindGroup, ok := provider.BindGroup().(*wgpu.BindGroup)
	if !ok || bindGroup == nil {
		return fmt.Errorf("%s has no bind group", provider.Label())
	}
	view, err := e.b.acquireSurface()
	if err != nil {
		return err
	}

	desc := &wgpu.RenderPassDescriptor{
		Label: p.PipelineKey(),
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			},
		},
	}
	if ts != nil {
		qs, ok := ts.QuerySet.(*wgpuQuerySet)
		if !ok {
			return errors.New("foreign query set")
		}
		desc.TimestampWrites = &wgpu.RenderPassTimestampWrites{
			QuerySet:                  qs.qs,
			BeginningOfPassWriteIndex: ts.BeginIndex,
			EndOfPassWriteIndex:       ts.EndIndex,
		}
	}

	pass := e.enc.BeginRenderPass(desc)
	pass.SetPipeline(renderPipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(6, 1, 0, 0)
	pass.End()
	pass.Release()
	return nil
}

func (e *wgpuCommandEncoder) ResolveQuerySet(qs resource.QuerySet, first, count uint32, dst resource.Buffer, dstOffset uint64) error {
	q, ok := qs.(*wgpuQuerySet)
	if !ok {
		return errors.New("foreign query set")
	}
	d, ok := dst.(*wgpuBuffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.enc.ResolveQuerySet(q.qs, first, count, d.buf, dstOffset)
	return nil
}

func (e *wgpuCommandEncoder) CopyBufferToBuffer(src resource.Buffer, srcOffset uint64, dst resource.Buffer, dstOffset, size uint64) error {
	s, ok := src.(*wgpuBuffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	d, ok := dst.(*wgpuBuffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.enc.CopyBufferToBuffer(s.buf, srcOffset, d.buf, dstOffset, size)
	return nil
}

func (e *wgpuCommandEncoder) CopyTextureToBuffer(src resource.Texture, dst resource.Buffer, bytesPerRow uint32) error {
	s, ok := src.(*wgpuTexture)
	if !ok {
		return errors.New("foreign texture")
	}
	d, ok := dst.(*wgpuBuffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  s.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: d.buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  bytesPerRow,
				RowsPerImage: s.desc.Height,
			},
		},
		&wgpu.Extent3D{
			Width:              s.desc.Width,
			Height:             s.desc.Height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

type wgpuBuffer struct {
	buf  *wgpu.Buffer
	desc resource.BufferDescriptor
}

func (w *wgpuBuffer) Label() string           { return w.desc.Label }
func (w *wgpuBuffer) Size() uint64            { return w.desc.Size }
func (w *wgpuBuffer) Usage() wgpu.BufferUsage { return w.desc.Usage }

func (w *wgpuBuffer) Release() {
	if w.buf != nil {
		w.buf.Release()
		w.buf = nil
	}
}

type wgpuTexture struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
	desc resource.TextureDescriptor
}

func (w *wgpuTexture) Label() string              { return w.desc.Label }
func (w *wgpuTexture) Width() uint32              { return w.desc.Width }
func (w *wgpuTexture) Height() uint32             { return w.desc.Height }
func (w *wgpuTexture) Format() wgpu.TextureFormat { return w.desc.Format }

func (w *wgpuTexture) Release() {
	if w.view != nil {
		w.view.Release()
		w.view = nil
	}
	if w.tex != nil {
		w.tex.Release()
		w.tex = nil
	}
}

type wgpuQuerySet struct {
	qs    *wgpu.QuerySet
	label string
	count uint32
}

func (w *wgpuQuerySet) Label() string { return w.label }
func (w *wgpuQuerySet) Count() uint32 { return w.count }

func (w *wgpuQuerySet) Release() {
	if w.qs != nil {
		w.qs.Release()
		w.qs = nil
	}
}

type wgpuSampler struct {
	s *wgpu.Sampler
}

func (w *wgpuSampler) Release() {
	if w.s != nil {
		w.s.Release()
		w.s = nil
	}
}

func roundUp16(v uint64) uint64 {
	return max(16, (v+15)&^15)
}

// mergeBindGroupLayouts merges bind group layout descriptors from vertex and fragment shaders.
// When the same group index appears in both, entries are combined and visibility flags are OR'd together.
//
// Parameters:
//   - vertexLayouts: bind group layout descriptors from the vertex shader
//   - fragmentLayouts: bind group layout descriptors from the fragment shader
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged descriptors keyed by group index
func mergeBindGroupLayouts(
	vertexLayouts, fragmentLayouts map[int]wgpu.BindGroupLayoutDescriptor,
) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor)

	groupIndices := make(map[int]bool)
	for g := range vertexLayouts {
		groupIndices[g] = true
	}
	for g := range fragmentLayouts {
		groupIndices[g] = true
	}

	for g := range groupIndices {
		vDesc, hasV := vertexLayouts[g]
		fDesc, hasF := fragmentLayouts[g]

		switch {
		case hasV && !hasF:
			merged[g] = vDesc
		case hasF && !hasV:
			merged[g] = fDesc
		default:
			entryMap := make(map[uint32]wgpu.BindGroupLayoutEntry)
			for _, e := range vDesc.Entries {
				entryMap[e.Binding] = e
			}
			for _, e := range fDesc.Entries {
				if existing, ok := entryMap[e.Binding]; ok {
					existing.Visibility |= e.Visibility
					entryMap[e.Binding] = existing
				} else {
					entryMap[e.Binding] = e
				}
			}

			entries := make([]wgpu.BindGroupLayoutEntry, 0, len(entryMap))
			for _, e := range entryMap {
				entries = append(entries, e)
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Binding < entries[j].Binding
			})

			merged[g] = wgpu.BindGroupLayoutDescriptor{
				Label:   vDesc.Label,
				Entries: entries,
			}
		}
	}

	return merged
}
