// Package renderertest provides a recording RendererBackend for exercising stages, the frame
// loop and the profiler without a GPU. Device operations are applied to in-memory buffers when a
// command sequence is submitted, so data written by one pass can be read back by a later map.
package renderertest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// Dispatch is a recorded compute pass.
type Dispatch struct {
	Pipeline   string
	Provider   string
	Workgroups [3]uint32
	Timestamps *renderer.PassTimestamps
}

// Draw is a recorded fullscreen render pass.
type Draw struct {
	Pipeline   string
	Provider   string
	Timestamps *renderer.PassTimestamps
}

// Backend is a renderer.RendererBackend that records everything it is asked to do.
type Backend struct {
	mu sync.Mutex

	// Timestamps is reported by SupportsTimestamps.
	Timestamps bool
	// AutoCompleteMaps completes every pending map on Poll, in request order.
	AutoCompleteMaps bool
	// SurfaceErr, when set, is returned by every fullscreen draw.
	SurfaceErr error
	// Clock supplies the value of each timestamp write. Defaults to a counter advancing 1ms per write.
	Clock func() uint64

	// Ops is the ordered log of device work: "write <buffer>", "dispatch <pipeline>", "draw <pipeline>",
	// "resolve <query set>", "copy <src> <dst>", "submit", "abandon", "present", "poll".
	Ops        []string
	Dispatches []Dispatch
	Draws      []Draw
	Registered []string
	Surface    [2]int
	Submits    int
	Abandoned  int
	Presents   int
	// Violations lists device usage errors such as copying into a buffer with a map in flight.
	Violations []string

	clock    uint64
	acquired bool
	maps     []*pendingMap
	buffers  []*Buffer
	textures []*Texture
}

var _ renderer.RendererBackend = &Backend{}

// NewRenderer returns a renderer running on a fresh recording backend.
func NewRenderer(opts ...renderer.RendererBuilderOption) (renderer.Renderer, *Backend) {
	b := &Backend{}
	r := renderer.NewRenderer(renderer.BackendTypeWGPU, nil, append([]renderer.RendererBuilderOption{renderer.WithBackend(b)}, opts...)...)
	return r, b
}

// Buffer is an in-memory device buffer.
type Buffer struct {
	Desc     resource.BufferDescriptor
	Data     []byte
	Released bool
	pending  bool
}

func (b *Buffer) Label() string           { return b.Desc.Label }
func (b *Buffer) Size() uint64            { return b.Desc.Size }
func (b *Buffer) Usage() wgpu.BufferUsage { return b.Desc.Usage }
func (b *Buffer) Release()                { b.Released = true }

// Pending reports whether a map request on the buffer has not completed yet.
func (b *Buffer) Pending() bool { return b.pending }

// Texture is an in-memory 2-D texture. Data holds tightly packed rows.
type Texture struct {
	Desc     resource.TextureDescriptor
	Data     []byte
	Released bool
}

func (t *Texture) Label() string              { return t.Desc.Label }
func (t *Texture) Width() uint32              { return t.Desc.Width }
func (t *Texture) Height() uint32             { return t.Desc.Height }
func (t *Texture) Format() wgpu.TextureFormat { return t.Desc.Format }
func (t *Texture) Release()                   { t.Released = true }

// QuerySet holds the last value written to each timestamp slot.
type QuerySet struct {
	Name     string
	Values   []uint64
	Released bool
}

func (q *QuerySet) Label() string { return q.Name }
func (q *QuerySet) Count() uint32 { return uint32(len(q.Values)) }
func (q *QuerySet) Release()      { q.Released = true }

// Sampler is a placeholder sampler.
type Sampler struct {
	Released bool
}

func (s *Sampler) Release() { s.Released = true }

// BindGroup is the object stored on providers by InitBindGroup.
type BindGroup struct {
	Label    string
	Bindings []uint32
	Released bool
}

func (g *BindGroup) Release() { g.Released = true }

type pendingMap struct {
	buf  *Buffer
	size uint64
	fn   func([]byte, error)
}

func (b *Backend) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Surface = [2]int{width, height}
}

func (b *Backend) SetPresentMode(renderer.PresentMode) {}

func (b *Backend) SupportsTimestamps() bool {
	return b.Timestamps
}

func (b *Backend) RegisterComputePipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Registered = append(b.Registered, p.PipelineKey())
	return nil
}

func (b *Backend) RegisterRenderPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Registered = append(b.Registered, p.PipelineKey())
	return nil
}

func (b *Backend) CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createBuffer(desc)
}

func (b *Backend) createBuffer(desc resource.BufferDescriptor) (*Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %s has zero size", desc.Label)
	}
	buf := &Buffer{Desc: desc, Data: make([]byte, desc.Size)}
	b.buffers = append(b.buffers, buf)
	return buf, nil
}

func (b *Backend) CreateTexture(desc resource.TextureDescriptor) (resource.Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %s has zero extent", desc.Label)
	}
	tex := &Texture{Desc: desc, Data: make([]byte, int(desc.Width*desc.Height*resource.BytesPerTexel(desc.Format)))}
	b.textures = append(b.textures, tex)
	return tex, nil
}

func (b *Backend) CreateQuerySet(label string, count uint32) (resource.QuerySet, error) {
	return &QuerySet{Name: label, Values: make([]uint64, count)}, nil
}

func (b *Backend) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	group := &BindGroup{Label: provider.Label()}
	for _, entry := range descriptor.Entries {
		binding := int(entry.Binding)
		switch {
		case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined,
			entry.StorageTexture.Format != wgpu.TextureFormatUndefined:
			tex := provider.Texture(binding)
			if tex == nil {
				return fmt.Errorf("%s: texture binding %d has no texture", provider.Label(), binding)
			}
			if f := entry.StorageTexture.Format; f != wgpu.TextureFormatUndefined && f != tex.Format() {
				return fmt.Errorf("%s: storage binding %d expects %v, got %v", provider.Label(), binding, f, tex.Format())
			}
		case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			if provider.Sampler(binding) == nil {
				return fmt.Errorf("%s: sampler binding %d has no sampler", provider.Label(), binding)
			}
		default:
			if provider.Buffer(binding) == nil {
				buf, err := b.createBuffer(resource.BufferDescriptor{
					Label: fmt.Sprintf("%s Buffer %d", provider.Label(), binding),
					Size:  max(16, (entry.Buffer.MinBindingSize+15)&^15),
					Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
				})
				if err != nil {
					return err
				}
				provider.SetBuffer(binding, buf)
				provider.Own(binding)
			}
		}
		group.Bindings = append(group.Bindings, entry.Binding)
	}
	provider.SetBindGroupLayout(&BindGroup{Label: provider.Label() + " Layout"})
	provider.SetBindGroup(group)
	return nil
}

func (b *Backend) InitTextureView(provider bind_group_provider.BindGroupProvider, binding int, stagingData common.TextureStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tex := &Texture{
		Desc: resource.TextureDescriptor{
			Label:  provider.Label() + " Texture",
			Width:  stagingData.Width,
			Height: stagingData.Height,
			Format: wgpu.TextureFormatRGBA8Unorm,
			Usage:  wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		},
		Data: slices.Clone(stagingData.Pixels),
	}
	b.textures = append(b.textures, tex)
	provider.SetTexture(binding, tex)
	provider.Own(binding)
	return nil
}

func (b *Backend) InitSampler(provider bind_group_provider.BindGroupProvider, binding int, _ common.SamplerStagingData) error {
	provider.SetSampler(binding, &Sampler{})
	provider.Own(binding)
	return nil
}

func (b *Backend) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range writes {
		buf, ok := w.Target().(*Buffer)
		if !ok || buf == nil {
			continue
		}
		if buf.pending {
			b.Violations = append(b.Violations, "write into pending buffer "+buf.Label())
		}
		copy(buf.Data[w.Offset:], w.Data)
		b.Ops = append(b.Ops, "write "+buf.Label())
	}
}

func (b *Backend) BeginCommands() (renderer.CommandEncoder, error) {
	return &encoder{b: b}, nil
}

func (b *Backend) Submit(enc renderer.CommandEncoder) error {
	e, ok := enc.(*encoder)
	if !ok {
		return errors.New("submit: foreign command encoder")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range e.ops {
		op()
	}
	b.Ops = append(b.Ops, "submit")
	b.Submits++
	return nil
}

func (b *Backend) MapRead(buf resource.Buffer, size uint64, fn func([]byte, error)) error {
	fb, ok := buf.(*Buffer)
	if !ok {
		return errors.New("map: foreign buffer")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if fb.pending {
		b.Violations = append(b.Violations, "map of pending buffer "+fb.Label())
		return fmt.Errorf("map: %s already has a map in flight", fb.Label())
	}
	fb.pending = true
	b.maps = append(b.maps, &pendingMap{buf: fb, size: size, fn: fn})
	return nil
}

func (b *Backend) Poll() {
	b.mu.Lock()
	b.Ops = append(b.Ops, "poll")
	auto := b.AutoCompleteMaps
	b.mu.Unlock()
	if auto {
		for b.PendingMaps() > 0 {
			b.CompleteMap(0)
		}
	}
}

func (b *Backend) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.acquired {
		return
	}
	b.acquired = false
	b.Presents++
	b.Ops = append(b.Ops, "present")
}

func (b *Backend) Release() {}

// PendingMaps returns the number of map requests that have not completed.
func (b *Backend) PendingMaps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.maps)
}

// CompleteMap completes the i-th outstanding map request, delivering the buffer's contents.
//
// Parameters:
//   - i: the index into the outstanding requests, in request order
func (b *Backend) CompleteMap(i int) {
	b.finishMap(i, nil)
}

// FailMap completes the i-th outstanding map request with err.
func (b *Backend) FailMap(i int, err error) {
	b.finishMap(i, err)
}

func (b *Backend) finishMap(i int, err error) {
	b.mu.Lock()
	m := b.maps[i]
	b.maps = slices.Delete(b.maps, i, i+1)
	m.buf.pending = false
	var data []byte
	if err == nil {
		data = slices.Clone(m.buf.Data[:m.size])
	}
	b.mu.Unlock()
	m.fn(data, err)
}

// Buffers returns every buffer created so far, including those created by InitBindGroup.
func (b *Backend) Buffers() []*Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.buffers)
}

// Textures returns every texture created so far.
func (b *Backend) Textures() []*Texture {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.textures)
}

// ResetOps clears the op log and the recorded passes.
func (b *Backend) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Ops = nil
	b.Dispatches = nil
	b.Draws = nil
}

// tick returns the next timestamp value. Called with mu held.
func (b *Backend) tick() uint64 {
	if b.Clock != nil {
		return b.Clock()
	}
	b.clock += 1_000_000
	return b.clock
}

func (b *Backend) writeTimestamps(ts *renderer.PassTimestamps) {
	if ts == nil {
		return
	}
	qs := ts.QuerySet.(*QuerySet)
	qs.Values[ts.BeginIndex] = b.tick()
	qs.Values[ts.EndIndex] = b.tick()
}

func (b *Backend) checkIdle(buf *Buffer, op string) {
	if buf.pending {
		b.Violations = append(b.Violations, fmt.Sprintf("%s into pending buffer %s", op, buf.Label()))
	}
}

// encoder defers every op to Submit so the backend state reflects submission order.
type encoder struct {
	b   *Backend
	ops []func()
}

var _ renderer.CommandEncoder = &encoder{}

func (e *encoder) Release() {
	e.b.mu.Lock()
	defer e.b.mu.Unlock()
	e.ops = nil
	e.b.Ops = append(e.b.Ops, "abandon")
	e.b.Abandoned++
}

func (e *encoder) DispatchCompute(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, workgroups [3]uint32, ts *renderer.PassTimestamps) error {
	if provider.BindGroup() == nil {
		return fmt.Errorf("%s has no bind group", provider.Label())
	}
	d := Dispatch{Pipeline: p.PipelineKey(), Provider: provider.Label(), Workgroups: workgroups, Timestamps: ts}
	e.ops = append(e.ops, func() {
		e.b.writeTimestamps(ts)
		e.b.Dispatches = append(e.b.Dispatches, d)
		e.b.Ops = append(e.b.Ops, "dispatch "+d.Pipeline)
	})
	return nil
}

func (e *encoder) DrawFullscreen(p pipeline.Pipeline, provider bind_group_provider.BindGroupProvider, ts *renderer.PassTimestamps) error {
	if provider.BindGroup() == nil {
		return fmt.Errorf("%s has no bind group", provider.Label())
	}
	e.b.mu.Lock()
	err := e.b.SurfaceErr
	if err == nil {
		e.b.acquired = true
	}
	e.b.mu.Unlock()
	if err != nil {
		return err
	}
	d := Draw{Pipeline: p.PipelineKey(), Provider: provider.Label(), Timestamps: ts}
	e.ops = append(e.ops, func() {
		e.b.writeTimestamps(ts)
		e.b.Draws = append(e.b.Draws, d)
		e.b.Ops = append(e.b.Ops, "draw "+d.Pipeline)
	})
	return nil
}

func (e *encoder) ResolveQuerySet(qs resource.QuerySet, first, count uint32, dst resource.Buffer, dstOffset uint64) error {
	q, ok := qs.(*QuerySet)
	if !ok {
		return errors.New("foreign query set")
	}
	d, ok := dst.(*Buffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.ops = append(e.ops, func() {
		e.b.checkIdle(d, "resolve")
		for i := uint32(0); i < count; i++ {
			binary.LittleEndian.PutUint64(d.Data[dstOffset+uint64(i)*8:], q.Values[first+i])
		}
		e.b.Ops = append(e.b.Ops, "resolve "+q.Name)
	})
	return nil
}

func (e *encoder) CopyBufferToBuffer(src resource.Buffer, srcOffset uint64, dst resource.Buffer, dstOffset, size uint64) error {
	s, ok := src.(*Buffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	d, ok := dst.(*Buffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.ops = append(e.ops, func() {
		e.b.checkIdle(d, "copy")
		copy(d.Data[dstOffset:dstOffset+size], s.Data[srcOffset:srcOffset+size])
		e.b.Ops = append(e.b.Ops, "copy "+s.Label()+" "+d.Label())
	})
	return nil
}

func (e *encoder) CopyTextureToBuffer(src resource.Texture, dst resource.Buffer, bytesPerRow uint32) error {
	s, ok := src.(*Texture)
	if !ok {
		return errors.New("foreign texture")
	}
	d, ok := dst.(*Buffer)
	if !ok {
		return errors.New("foreign buffer")
	}
	e.ops = append(e.ops, func() {
		e.b.checkIdle(d, "copy")
		row := s.Desc.Width * resource.BytesPerTexel(s.Desc.Format)
		for y := uint32(0); y < s.Desc.Height; y++ {
			copy(d.Data[y*bytesPerRow:y*bytesPerRow+row], s.Data[y*row:(y+1)*row])
		}
		e.b.Ops = append(e.b.Ops, "copy "+s.Label()+" "+d.Label())
	})
	return nil
}
