package profiler

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrReadbackPending is returned when a handle is checked in while its map is still in flight.
	ErrReadbackPending = errors.New("readback buffer has a map in flight")
	// ErrHandleNotCheckedOut is returned when a handle is used without being checked out of this pool.
	ErrHandleNotCheckedOut = errors.New("readback handle is not checked out")
	// ErrPoolExhausted is returned by Checkout when the pool is capped and every buffer is in use.
	ErrPoolExhausted = errors.New("readback pool exhausted")
)

// Device is the part of the renderer the pool needs.
type Device interface {
	CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error)
	MapRead(buf resource.Buffer, size uint64, fn func(data []byte, err error)) error
}

// HandleState is the lifecycle position of a pooled readback buffer.
type HandleState int

const (
	// HandleIdle buffers sit in the spare list.
	HandleIdle HandleState = iota
	// HandleCheckedOut buffers belong to a caller recording a copy into them.
	HandleCheckedOut
	// HandlePending buffers have a map in flight and return to the spare list when it completes.
	HandlePending
)

func (s HandleState) String() string {
	switch s {
	case HandleIdle:
		return "idle"
	case HandleCheckedOut:
		return "checked-out"
	case HandlePending:
		return "pending"
	}
	return fmt.Sprintf("HandleState(%d)", int(s))
}

// ReadbackHandle is a pooled MapRead buffer. Only the pool changes its state.
type ReadbackHandle struct {
	pool  *ReadbackPool
	buf   resource.Buffer
	state HandleState
}

// Buffer returns the device buffer to copy into.
func (h *ReadbackHandle) Buffer() resource.Buffer {
	return h.buf
}

// State returns the handle's current state.
func (h *ReadbackHandle) State() HandleState {
	h.pool.mu.Lock()
	defer h.pool.mu.Unlock()
	return h.state
}

// ReadbackPool recycles MapRead buffers of a fixed size. A buffer goes back to the spare list
// only after its map completes, so a buffer is never handed out while the device may still
// write to it.
type ReadbackPool struct {
	mu     sync.Mutex
	device Device
	label  string
	size   uint64
	limit  int64
	sem    *semaphore.Weighted
	spares []*ReadbackHandle
	all    []*ReadbackHandle
	warned bool
}

// ReadbackPoolBuilderOption is a functional option for configuring a ReadbackPool.
type ReadbackPoolBuilderOption func(*ReadbackPool)

// WithMaxBuffers caps the number of buffers the pool will allocate. Zero leaves the pool unbounded.
//
// Parameters:
//   - n: the maximum number of buffers
//
// Returns:
//   - ReadbackPoolBuilderOption: option function to apply
func WithMaxBuffers(n int) ReadbackPoolBuilderOption {
	return func(p *ReadbackPool) {
		p.limit = int64(max(n, 0))
	}
}

// WithPoolLabel sets the label prefix of allocated buffers.
//
// Parameters:
//   - label: the label prefix
//
// Returns:
//   - ReadbackPoolBuilderOption: option function to apply
func WithPoolLabel(label string) ReadbackPoolBuilderOption {
	return func(p *ReadbackPool) {
		p.label = label
	}
}

// growthWarning is the pool size past which growth is logged as suspicious.
const growthWarning = 8

// NewReadbackPool creates an empty pool of size byte buffers.
//
// Parameters:
//   - device: the renderer used to allocate and map buffers
//   - size: the size of every buffer in bytes
//   - options: variadic list of ReadbackPoolBuilderOption functions
//
// Returns:
//   - *ReadbackPool: the pool
func NewReadbackPool(device Device, size uint64, options ...ReadbackPoolBuilderOption) *ReadbackPool {
	p := &ReadbackPool{
		device: device,
		label:  "Readback",
		size:   size,
	}
	for _, opt := range options {
		opt(p)
	}
	if p.limit > 0 {
		p.sem = semaphore.NewWeighted(p.limit)
	}
	return p
}

// Checkout pops a spare buffer or allocates a new one.
//
// Returns:
//   - *ReadbackHandle: a handle in the HandleCheckedOut state
//   - error: ErrPoolExhausted if the pool is capped and full, or an allocation error
func (p *ReadbackPool) Checkout() (*ReadbackHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.spares); n > 0 {
		h := p.spares[n-1]
		p.spares = p.spares[:n-1]
		h.state = HandleCheckedOut
		return h, nil
	}

	if p.sem != nil && !p.sem.TryAcquire(1) {
		return nil, ErrPoolExhausted
	}
	buf, err := p.device.CreateBuffer(resource.BufferDescriptor{
		Label: fmt.Sprintf("%s %d", p.label, len(p.all)),
		Size:  p.size,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		return nil, err
	}
	h := &ReadbackHandle{pool: p, buf: buf, state: HandleCheckedOut}
	p.all = append(p.all, h)
	if len(p.all) > growthWarning && !p.warned {
		p.warned = true
		log.Warningf("readback pool grew to %d buffers; timing results are not being collected fast enough", len(p.all))
	}
	return h, nil
}

// Checkin returns a checked-out handle that was never mapped.
//
// Parameters:
//   - h: a handle from Checkout
//
// Returns:
//   - error: ErrReadbackPending if a map is in flight, ErrHandleNotCheckedOut if h is idle or foreign
func (p *ReadbackPool) Checkin(h *ReadbackHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h == nil || h.pool != p {
		return ErrHandleNotCheckedOut
	}
	switch h.state {
	case HandlePending:
		return ErrReadbackPending
	case HandleIdle:
		return ErrHandleNotCheckedOut
	}
	h.state = HandleIdle
	p.spares = append(p.spares, h)
	return nil
}

// Map requests a host mapping of a checked-out handle. fn runs once the map completes, after
// which the handle returns to the spare list on its own.
//
// Parameters:
//   - h: a handle in the HandleCheckedOut state
//   - fn: receives a copy of the buffer contents, or the map error
//
// Returns:
//   - error: ErrHandleNotCheckedOut, or the error from issuing the map; the handle stays checked out
func (p *ReadbackPool) Map(h *ReadbackHandle, fn func(data []byte, err error)) error {
	p.mu.Lock()
	if h == nil || h.pool != p || h.state != HandleCheckedOut {
		p.mu.Unlock()
		return ErrHandleNotCheckedOut
	}
	h.state = HandlePending
	p.mu.Unlock()

	err := p.device.MapRead(h.buf, p.size, func(data []byte, err error) {
		fn(data, err)
		p.mu.Lock()
		h.state = HandleIdle
		p.spares = append(p.spares, h)
		p.mu.Unlock()
	})
	if err != nil {
		p.mu.Lock()
		h.state = HandleCheckedOut
		p.mu.Unlock()
		return err
	}
	return nil
}

// Spares returns the number of idle buffers.
func (p *ReadbackPool) Spares() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.spares)
}

// Len returns the number of buffers the pool has allocated.
func (p *ReadbackPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}

// Pending returns the number of buffers with a map in flight.
func (p *ReadbackPool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, h := range p.all {
		if h.state == HandlePending {
			n++
		}
	}
	return n
}

// Release frees every buffer the pool allocated.
func (p *ReadbackPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.all {
		h.buf.Release()
	}
	p.all = nil
	p.spares = nil
}
