package params

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
)

// BufferWriter is the part of the renderer a Block needs.
type BufferWriter interface {
	CreateBuffer(desc resource.BufferDescriptor) (resource.Buffer, error)
	WriteBuffers(writes []bind_group_provider.BufferWrite)
}

// Block mirrors a uniform record of type T into a device buffer.
type Block[T any] struct {
	layout *Layout
	writer BufferWriter
	buffer resource.Buffer
}

// NewBlock allocates the uniform buffer for a record.
//
// Parameters:
//   - w: the renderer used to create and write the buffer
//   - label: a debug label for the buffer
//   - layout: the layout of T
//
// Returns:
//   - *Block[T]: the block
//   - error: an error if the layout does not describe T or the buffer cannot be created
func NewBlock[T any](w BufferWriter, label string, layout *Layout) (*Block[T], error) {
	var zero T
	if _, err := layout.Encode(zero); err != nil {
		return nil, err
	}
	buf, err := w.CreateBuffer(resource.BufferDescriptor{
		Label: label,
		Size:  layout.BufferSize(),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return &Block[T]{layout: layout, writer: w, buffer: buf}, nil
}

// Refresh encodes v and schedules a write of the whole buffer.
//
// Parameters:
//   - v: the record to upload
func (b *Block[T]) Refresh(v T) {
	data, err := b.layout.Encode(v)
	if err != nil {
		// T is fixed at construction and checked in NewBlock.
		panic(err)
	}
	b.writer.WriteBuffers([]bind_group_provider.BufferWrite{{Buffer: b.buffer, Data: data}})
}

// Buffer returns the device buffer backing the block.
func (b *Block[T]) Buffer() resource.Buffer {
	return b.buffer
}

// Layout returns the record layout.
func (b *Block[T]) Layout() *Layout {
	return b.layout
}

// Release frees the device buffer.
func (b *Block[T]) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}
