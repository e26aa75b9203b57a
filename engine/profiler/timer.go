package profiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer/resource"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/olekukonko/tablewriter"
)

var log = logger.New("profiler")

// Pass identifies an instrumented GPU pass.
type Pass int

const (
	// PassTrace times the trace compute pass.
	PassTrace Pass = iota
	// PassPresent times the fullscreen present pass.
	PassPresent

	passCount
)

var passNames = [...]string{PassTrace: "trace", PassPresent: "present"}

func (p Pass) String() string {
	if p >= 0 && p < passCount {
		return passNames[p]
	}
	return fmt.Sprintf("Pass(%d)", int(p))
}

// Each pass owns a begin and end slot; the resolved set is read back as little endian uint64 pairs.
const (
	queryCount     = uint32(passCount) * 2
	resolveSize    = uint64(queryCount) * 8
	defaultReportN = 30
)

// PassStats summarizes the accepted durations of one pass.
type PassStats struct {
	Pass Pass
	// Samples is the number of accepted durations.
	Samples uint64
	// Discarded counts non-positive durations dropped as counter artifacts.
	Discarded uint64
	// Reports is the number of periodic averages emitted.
	Reports uint64
	// LastReport is the most recent periodic average.
	LastReport time.Duration

	// Mean, Min and Max cover every accepted duration.
	Mean time.Duration
	Min  time.Duration
	Max  time.Duration
}

// Timer measures GPU pass durations with timestamp queries without stalling the frame loop.
//
// Resolved timestamps are raw device ticks. They are multiplied by the period set with
// WithTimestampPeriod, which defaults to 1 and so treats ticks as nanoseconds. The webgpu
// binding does not expose the queue's timestamp period, so callers on devices with a
// different tick length must supply it.
type Timer interface {
	// Enabled reports whether timestamps are being recorded.
	Enabled() bool

	// TraceTimestamps arms the trace pass for the current frame.
	//
	// Returns:
	//   - *renderer.PassTimestamps: the writes to pass to the trace dispatch, nil when disabled
	TraceTimestamps() *renderer.PassTimestamps

	// PresentTimestamps arms the present pass for the current frame.
	//
	// Returns:
	//   - *renderer.PassTimestamps: the writes to pass to the fullscreen draw, nil when disabled
	PresentTimestamps() *renderer.PassTimestamps

	// QueryPerf records the resolve and readback copy for the armed passes and schedules the
	// readback map for after submission. Must be the last command recorded in the frame.
	//
	// Parameters:
	//   - cmd: the frame's command sequence
	//
	// Returns:
	//   - error: an error if recording fails
	QueryPerf(cmd renderer.CommandSequence) error

	// Discard disarms the passes armed this frame without recording them. Call it when the
	// frame ends without QueryPerf so the next frame does not read stale slots.
	Discard()

	// Stats returns the per pass summaries.
	Stats() []PassStats

	// DumpStats writes the summaries as a table.
	//
	// Parameters:
	//   - w: the destination
	DumpStats(w io.Writer)

	// Release frees the query set and readback buffers.
	Release()
}

// TimerBuilderOption is a functional option for configuring a Timer.
type TimerBuilderOption func(*timerConfig)

type timerConfig struct {
	enabled     bool
	maxReadback int
	reportEvery uint64
	period      float64
}

// WithEnabled turns GPU timing on or off. A disabled timer is a no-op regardless of device support.
//
// Parameters:
//   - enabled: whether to time passes
//
// Returns:
//   - TimerBuilderOption: option function to apply
func WithEnabled(enabled bool) TimerBuilderOption {
	return func(c *timerConfig) {
		c.enabled = enabled
	}
}

// WithMaxReadbackBuffers caps the readback pool. Frames that find the pool exhausted are not timed.
//
// Parameters:
//   - n: the maximum number of readback buffers, 0 for unbounded
//
// Returns:
//   - TimerBuilderOption: option function to apply
func WithMaxReadbackBuffers(n int) TimerBuilderOption {
	return func(c *timerConfig) {
		c.maxReadback = n
	}
}

// WithTimestampPeriod sets the length of one timestamp tick.
//
// Parameters:
//   - ns: nanoseconds per tick, ignored unless positive
//
// Returns:
//   - TimerBuilderOption: option function to apply
func WithTimestampPeriod(ns float32) TimerBuilderOption {
	return func(c *timerConfig) {
		if ns > 0 {
			c.period = float64(ns)
		}
	}
}

// WithReportInterval sets how many accepted samples are averaged per periodic report.
//
// Parameters:
//   - n: samples per report
//
// Returns:
//   - TimerBuilderOption: option function to apply
func WithReportInterval(n int) TimerBuilderOption {
	return func(c *timerConfig) {
		if n > 0 {
			c.reportEvery = uint64(n)
		}
	}
}

// NewTimer returns a timestamp query timer if the renderer supports timestamps, otherwise a
// no-op timer. The choice is made once, here.
//
// Parameters:
//   - r: the renderer
//   - options: variadic list of TimerBuilderOption functions
//
// Returns:
//   - Timer: the timer
//   - error: an error if the query set or resolve buffer cannot be created
func NewTimer(r renderer.Renderer, options ...TimerBuilderOption) (Timer, error) {
	cfg := timerConfig{enabled: true, reportEvery: defaultReportN, period: 1}
	for _, opt := range options {
		opt(&cfg)
	}
	if !cfg.enabled {
		return noopTimer{}, nil
	}
	if !r.SupportsTimestamps() {
		log.Info("timestamp queries are not supported by this device, GPU timing disabled")
		return noopTimer{}, nil
	}

	qs, err := r.CreateQuerySet("Timestamps", queryCount)
	if err != nil {
		return nil, err
	}
	resolve, err := r.CreateBuffer(resource.BufferDescriptor{
		Label: "Timestamp Resolve",
		Size:  resolveSize,
		Usage: wgpu.BufferUsageQueryResolve | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		qs.Release()
		return nil, err
	}
	t := &gpuTimer{
		querySet:    qs,
		resolve:     resolve,
		pool:        NewReadbackPool(r, resolveSize, WithMaxBuffers(cfg.maxReadback), WithPoolLabel("Timestamp Readback")),
		reportEvery: cfg.reportEvery,
		period:      cfg.period,
	}
	for p := range t.stats {
		t.stats[p].Pass = Pass(p)
	}
	return t, nil
}

type passAccumulator struct {
	PassStats
	sum        time.Duration
	windowSum  time.Duration
	windowSize uint64
}

type gpuTimer struct {
	querySet resource.QuerySet
	resolve  resource.Buffer
	pool     *ReadbackPool

	reportEvery uint64
	period      float64
	armed       [passCount]bool
	exhausted   uint64

	mu    sync.Mutex
	stats [passCount]passAccumulator
}

var _ Timer = &gpuTimer{}

func (t *gpuTimer) Enabled() bool {
	return true
}

func (t *gpuTimer) arm(p Pass) *renderer.PassTimestamps {
	t.armed[p] = true
	return &renderer.PassTimestamps{
		QuerySet:   t.querySet,
		BeginIndex: uint32(p) * 2,
		EndIndex:   uint32(p)*2 + 1,
	}
}

func (t *gpuTimer) TraceTimestamps() *renderer.PassTimestamps {
	return t.arm(PassTrace)
}

func (t *gpuTimer) PresentTimestamps() *renderer.PassTimestamps {
	return t.arm(PassPresent)
}

func (t *gpuTimer) Discard() {
	t.armed = [passCount]bool{}
}

func (t *gpuTimer) QueryPerf(cmd renderer.CommandSequence) error {
	armed := t.armed
	t.armed = [passCount]bool{}
	if armed == ([passCount]bool{}) {
		return nil
	}

	h, err := t.pool.Checkout()
	if errors.Is(err, ErrPoolExhausted) {
		t.exhausted++
		log.Debugf("readback pool exhausted, frame not timed (%d skipped)", t.exhausted)
		return nil
	}
	if err != nil {
		return err
	}

	err = cmd.ResolveQuerySet(t.querySet, 0, queryCount, t.resolve, 0)
	if err == nil {
		err = cmd.CopyBufferToBuffer(t.resolve, 0, h.Buffer(), 0, resolveSize)
	}
	if err != nil {
		if cerr := t.pool.Checkin(h); cerr != nil {
			log.Errorf("return readback buffer: %v", cerr)
		}
		return fmt.Errorf("query perf: %w", err)
	}

	cmd.OnSubmitted(func() {
		err := t.pool.Map(h, func(data []byte, err error) {
			if err != nil {
				log.Warningf("timestamp readback failed: %v", err)
				return
			}
			t.collect(data, armed)
		})
		if err != nil {
			log.Errorf("map timestamp readback: %v", err)
			if cerr := t.pool.Checkin(h); cerr != nil {
				log.Errorf("return readback buffer: %v", cerr)
			}
		}
	})
	return nil
}

// collect folds one resolved query set into the pass statistics.
func (t *gpuTimer) collect(data []byte, armed [passCount]bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for p := range armed {
		if !armed[p] {
			continue
		}
		begin := binary.LittleEndian.Uint64(data[p*16:])
		end := binary.LittleEndian.Uint64(data[p*16+8:])
		t.record(Pass(p), t.ticksToNanos(int64(end)-int64(begin)))
	}
}

func (t *gpuTimer) ticksToNanos(ticks int64) int64 {
	if t.period == 1 {
		return ticks
	}
	return int64(math.Round(float64(ticks) * t.period))
}

// record accepts a duration in nanoseconds. Called with mu held.
func (t *gpuTimer) record(p Pass, ns int64) {
	s := &t.stats[p]
	if ns <= 0 {
		s.Discarded++
		return
	}
	d := time.Duration(ns)
	s.Samples++
	s.sum += d
	s.Mean = s.sum / time.Duration(s.Samples)
	if s.Samples == 1 || d < s.Min {
		s.Min = d
	}
	s.Max = max(s.Max, d)

	s.windowSum += d
	s.windowSize++
	if s.windowSize < t.reportEvery {
		return
	}
	s.LastReport = s.windowSum / time.Duration(s.windowSize)
	s.Reports++
	s.windowSum = 0
	s.windowSize = 0
	ms := math.Round(float64(s.LastReport) / float64(time.Millisecond))
	log.Infof("avg %s: %.0fms (spare readback buffers: %d)", p, ms, t.pool.Spares())
}

func (t *gpuTimer) Stats() []PassStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PassStats, 0, passCount)
	for _, s := range t.stats {
		out = append(out, s.PassStats)
	}
	return out
}

func (t *gpuTimer) DumpStats(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Pass", "Samples", "Discarded", "Mean", "Min", "Max"})
	for _, s := range t.Stats() {
		table.Append([]string{
			s.Pass.String(),
			fmt.Sprint(s.Samples),
			fmt.Sprint(s.Discarded),
			s.Mean.String(),
			s.Min.String(),
			s.Max.String(),
		})
	}
	table.SetFooter([]string{"", "", "", "", "READBACK", fmt.Sprintf("%d buffers", t.pool.Len())})
	table.Render()
}

func (t *gpuTimer) Release() {
	t.pool.Release()
	t.resolve.Release()
	t.querySet.Release()
}

// noopTimer is used when timing is disabled or the device has no timestamp queries.
type noopTimer struct{}

var _ Timer = noopTimer{}

func (noopTimer) Enabled() bool { return false }
func (noopTimer) TraceTimestamps() *renderer.PassTimestamps { return nil }
func (noopTimer) PresentTimestamps() *renderer.PassTimestamps { return nil }
func (noopTimer) QueryPerf(renderer.CommandSequence) error { return nil }
func (noopTimer) Discard() {}
func (noopTimer) Stats() []PassStats { return nil }
func (noopTimer) DumpStats(w io.Writer) { fmt.Fprintln(w, "GPU timing disabled") }
func (noopTimer) Release() {}
