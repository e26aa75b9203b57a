package bind_group_provider

import "github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"

// BufferWrite describes a single GPU buffer write operation. When Buffer is set it is the
// target; otherwise the buffer bound at Binding on Provider is used.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Buffer   resource.Buffer
	Offset   uint64
	Data     []byte
}

// Target resolves the buffer this write applies to, or nil if none is bound.
//
// Returns:
//   - resource.Buffer: the destination buffer
func (w BufferWrite) Target() resource.Buffer {
	if w.Buffer != nil {
		return w.Buffer
	}
	if w.Provider == nil {
		return nil
	}
	return w.Provider.Buffer(w.Binding)
}
