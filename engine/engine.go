// Package engine wires the window, renderer and render stages into the progressive frame loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-raytrace/common"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/camera"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/loader"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/params"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/profiler"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/renderer"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/scene"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/snapshot"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/stage"
	"github.com/Carmen-Shannon/oxy-raytrace/engine/window"
)

var log = logger.New("engine")

// ErrNotInitialized is returned by RenderFrame before Init has succeeded.
var ErrNotInitialized = errors.New("engine: not initialized")

const (
	defaultNoiseSize = 256
	snapshotTimeout  = 10 * time.Second
	titleInterval    = 250 * time.Millisecond
)

// engine implements the Engine interface.
// Coordinates the input tick, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once
	closeOnce   sync.Once

	window     window.Window
	renderer   renderer.Renderer
	store      *params.Store
	controller camera.CameraController
	loader     loader.Loader

	preset      scene.Preset
	description *scene.Description
	seed        uint64
	noisePath   string
	noiseSize   uint32
	validate    bool

	trace    stage.TraceStage
	accum    stage.AccumulationStage
	tonemap  stage.TonemapStage
	present  stage.PresentationStage
	timer    profiler.Timer
	profiler *profiler.Profiler

	profilingEnabled bool
	maxReadback      int
	snapshotPath     string

	engineTickRate   time.Duration
	renderFrameLimit time.Duration

	now   func() time.Time
	start time.Time

	// Surface size requested from the window thread, applied on the render thread.
	surfaceMu      sync.Mutex
	pendingSurface *[2]int

	frames      atomic.Uint64
	sampleCount atomic.Uint32
	lastTitle   time.Time

	errMu sync.Mutex
	err   error
}

// Engine is the main entry point for the path tracer.
// It owns the frame loop, the parameter store and the render stages.
type Engine interface {
	// Init builds the scene, loads the noise texture and creates the render stages and timer.
	// Scene compilation and noise loading run concurrently.
	//
	// Returns:
	//   - error: error if any stage cannot be created
	Init() error

	// RenderFrame records and submits one frame: trace, accumulate, tonemap, present and the
	// timestamp readback.
	//
	// Returns:
	//   - error: a fatal frame error; a lost surface is handled internally
	RenderFrame() error

	// Run initializes the engine if needed, starts the render and input goroutines and blocks
	// in the window message loop until the window closes or Quit is called.
	//
	// Returns:
	//   - error: the error that stopped the render loop, or a shutdown error
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// SetTickRate sets how often held movement keys are applied.
	// If the engine is running, the change takes effect immediately.
	//
	// Parameters:
	//   - fps: ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// Window returns the window, nil when running headless.
	Window() window.Window

	// Renderer returns the renderer.
	Renderer() renderer.Renderer

	// Store returns the live render parameters.
	Store() *params.Store

	// Controller returns the camera controller writing into the store.
	Controller() camera.CameraController

	// Timer returns the GPU pass timer.
	Timer() profiler.Timer

	// SampleCount returns the number of frames in the running average after the last frame.
	SampleCount() uint32

	// Frames returns the number of frames rendered.
	Frames() uint64

	// Snapshot reads back the current display image and writes it to path (.png or .webp).
	//
	// Parameters:
	//   - ctx: bounds the readback wait
	//   - path: the output file
	//
	// Returns:
	//   - error: error if the readback or write fails
	Snapshot(ctx context.Context, path string) error

	// Release frees the stages, the timer and the renderer.
	Release()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine with the provided options.
// GPU resources are not created until Init.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		store:           params.NewStore(params.DefaultRenderParameters()),
		loader:          loader.NewLoader(),
		preset:          scene.PresetDefault,
		noiseSize:       defaultNoiseSize,
		engineTickRate:  time.Second / 60,
		now:             time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(profiler.WithClock(e.now))
	return e
}

func (e *engine) Init() error {
	if e.trace != nil {
		return nil
	}
	if e.renderer == nil {
		if e.window == nil {
			return errors.New("engine: a window or a renderer is required")
		}
		e.renderer = renderer.NewRenderer(renderer.BackendTypeWGPU, e.window, renderer.WithTimestamps(e.profilingEnabled))
	}

	compiled, noise, err := e.prepare()
	if err != nil {
		return err
	}

	p := e.store.Peek()
	opts := []stage.StageBuilderOption{stage.WithValidation(e.validate)}
	if e.trace, err = stage.NewTraceStage(e.renderer, compiled, noise, p.TextureWidth, p.TextureHeight, opts...); err != nil {
		return err
	}
	if e.accum, err = stage.NewAccumulationStage(e.renderer, e.trace.Radiance(), opts...); err != nil {
		e.releaseStages()
		return err
	}
	if e.tonemap, err = stage.NewTonemapStage(e.renderer, e.accum.Output(), opts...); err != nil {
		e.releaseStages()
		return err
	}
	if e.present, err = stage.NewPresentationStage(e.renderer, e.tonemap.Display(), opts...); err != nil {
		e.releaseStages()
		return err
	}
	if e.timer, err = profiler.NewTimer(e.renderer,
		profiler.WithEnabled(e.profilingEnabled),
		profiler.WithMaxReadbackBuffers(e.maxReadback),
	); err != nil {
		e.releaseStages()
		return err
	}

	e.initInput()
	e.start = e.now()
	log.Infof("rendering %s at %dx%d, %d spp per frame, sample budget %d",
		e.sceneName(), p.TextureWidth, p.TextureHeight, p.SamplesPerPixel, p.MaxSampleCount)
	return nil
}

// prepare builds and compiles the scene and loads the noise texture on a worker pool.
func (e *engine) prepare() (string, common.TextureStagingData, error) {
	pool := worker.NewDynamicWorkerPool(2, 2, time.Second)
	defer pool.Stop()

	var (
		wg       sync.WaitGroup
		compiled string
		noise    common.TextureStagingData
		sceneErr error
		noiseErr error
	)
	wg.Add(2)
	pool.SubmitTask(worker.Task{
		ID: 0,
		Do: func() (any, error) {
			defer wg.Done()
			d := e.description
			if d == nil {
				if d, sceneErr = scene.Build(e.preset, e.seed); sceneErr != nil {
					return nil, sceneErr
				}
			}
			compiled, sceneErr = scene.Compile(d)
			if sceneErr == nil {
				s := d.Stats()
				log.Debugf("compiled scene: %d materials, %d spheres, %d quads, %d lights", s.Materials, s.Spheres, s.Quads, s.Lights)
			}
			return compiled, sceneErr
		},
	})
	pool.SubmitTask(worker.Task{
		ID: 1,
		Do: func() (any, error) {
			defer wg.Done()
			if e.noisePath == "" {
				noise = e.loader.Generate(e.noiseSize, e.noiseSize, e.seed)
				return noise, nil
			}
			noise, noiseErr = e.loader.Load(e.noisePath, e.noiseSize, e.noiseSize)
			return noise, noiseErr
		},
	})
	wg.Wait()

	if sceneErr != nil {
		return "", noise, fmt.Errorf("engine: scene: %w", sceneErr)
	}
	if noiseErr != nil {
		return "", noise, fmt.Errorf("engine: noise: %w", noiseErr)
	}
	return compiled, noise, nil
}

// initInput connects window events to the camera controller.
func (e *engine) initInput() {
	if e.controller == nil {
		opts := []camera.CameraControllerOption{}
		if e.window != nil {
			opts = append(opts,
				camera.WithViewport(e.window.Width(), e.window.Height()),
				camera.WithPointerLock(e.window.SetPointerLock),
			)
		}
		e.controller = camera.NewCameraController(e.store, opts...)
	}
	if e.window == nil {
		return
	}
	c := e.controller
	e.window.SetKeyDownCallback(c.KeyDown)
	e.window.SetKeyUpCallback(c.KeyUp)
	e.window.SetMouseButtonCallback(c.MouseButton)
	e.window.SetMouseMoveCallback(c.MouseMove)
	e.window.SetScrollCallback(c.Scroll)
	e.window.SetResizeCallback(func(width, height int) {
		c.Resize(width, height)
		e.requestSurface(width, height)
	})
	e.window.SetUpdateCallback(e.onWindowUpdate)
}

func (e *engine) RenderFrame() error {
	if e.trace == nil {
		return ErrNotInitialized
	}
	e.applySurface()

	frame := e.store.Acquire()
	p := frame.Params
	if err := e.fit(p.TextureWidth, p.TextureHeight); err != nil {
		return err
	}
	changed := frame.Changed
	if changed {
		p.SampleCount = 0
	} else {
		p.SampleCount = e.accum.SampleCount()
	}
	p.Time = float32(e.now().Sub(e.start).Seconds())

	cmd, err := e.renderer.BeginCommands()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	// No-ops once the frame has been submitted and its timestamps queried.
	defer func() {
		cmd.Abandon()
		e.timer.Discard()
	}()

	var ts *renderer.PassTimestamps
	if !p.Converged() {
		ts = e.timer.TraceTimestamps()
	}
	traced, err := e.trace.Trace(cmd, p, ts)
	if err != nil {
		return err
	}
	if traced {
		if err := e.accum.Accumulate(cmd, changed, nil); err != nil {
			return err
		}
	}
	e.sampleCount.Store(e.accum.SampleCount())

	if err := e.tonemap.Tonemap(cmd, p, nil); err != nil {
		return err
	}

	presented := true
	if err := e.present.Present(cmd, e.timer.PresentTimestamps()); err != nil {
		if !errors.Is(err, renderer.ErrSurfaceUnavailable) {
			return err
		}
		presented = false
		e.timer.Discard()
		log.Debugf("surface unavailable, skipping present: %v", err)
		if e.window != nil {
			e.requestSurface(e.window.Width(), e.window.Height())
		}
	}
	if presented {
		if err := e.timer.QueryPerf(cmd); err != nil {
			return err
		}
	}

	if err := e.renderer.Submit(cmd); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if presented {
		e.renderer.Present()
	}
	e.renderer.Poll()
	e.frames.Add(1)
	return nil
}

// fit recreates the stage textures when the requested image size changed.
func (e *engine) fit(width, height uint32) error {
	rad := e.trace.Radiance()
	if rad.Width() == width && rad.Height() == height {
		return nil
	}
	log.Infof("image size %dx%d -> %dx%d", rad.Width(), rad.Height(), width, height)
	if err := e.trace.Resize(width, height); err != nil {
		return err
	}
	if err := e.accum.Resize(e.trace.Radiance()); err != nil {
		return err
	}
	if err := e.tonemap.Resize(e.accum.Output()); err != nil {
		return err
	}
	return e.present.Rebind(e.tonemap.Display())
}

func (e *engine) requestSurface(width, height int) {
	e.surfaceMu.Lock()
	defer e.surfaceMu.Unlock()
	e.pendingSurface = &[2]int{width, height}
}

func (e *engine) applySurface() {
	e.surfaceMu.Lock()
	size := e.pendingSurface
	e.pendingSurface = nil
	e.surfaceMu.Unlock()
	if size != nil {
		e.renderer.Resize(size[0], size[1])
	}
}

// onWindowUpdate runs on the window thread each message loop iteration.
func (e *engine) onWindowUpdate() {
	select {
	case <-e.quitChannel:
		// The render goroutine must be done with the surface before the window goes away.
		e.wg.Wait()
		e.closeWindow()
		return
	default:
	}
	if now := e.now(); now.Sub(e.lastTitle) >= titleInterval {
		e.lastTitle = now
		p := e.store.Peek()
		title := fmt.Sprintf("oxy-raytrace | %s | %d samples", e.sceneName(), e.sampleCount.Load())
		if p.MaxSampleCount > 0 && e.sampleCount.Load() >= p.MaxSampleCount {
			title += " (converged)"
		}
		if e.profilingEnabled {
			title += fmt.Sprintf(" | %.0f fps", e.profiler.FPS())
		}
		e.window.SetTitle(title)
	}
}

func (e *engine) closeWindow() {
	e.closeOnce.Do(func() {
		if e.window != nil && e.window.IsRunning() {
			if err := e.window.Close(); err != nil {
				log.Warningf("close window: %v", err)
			}
		}
	})
}

func (e *engine) Run() error {
	if e.window == nil {
		return errors.New("engine: Run needs a window")
	}
	if err := e.Init(); err != nil {
		return err
	}
	e.running.Store(true)
	e.handle()
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.running.Store(false)
	err := e.shutdown()
	e.closeWindow()
	return err
}

// shutdown writes the snapshot and the timing summary, then releases the device.
func (e *engine) shutdown() error {
	runErr := e.loopErr()
	if e.snapshotPath != "" && runErr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		err := e.Snapshot(ctx, e.snapshotPath)
		cancel()
		if err != nil {
			runErr = err
		}
	}
	if e.timer != nil && e.timer.Enabled() {
		e.timer.DumpStats(os.Stderr)
	}
	e.Release()
	return runErr
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	e.signalQuit()
}

func (e *engine) loopErr() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// handle launches the input and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleInput()
	go e.handleRender()
}

// handleInput applies held movement keys at the engine tick rate.
func (e *engine) handleInput() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			e.controller.Update()
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("render goroutine recovered from panic: %v", r)
			e.fail(fmt.Errorf("engine: render panic: %v", r))
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}
		frameStart := e.now()

		if err := e.RenderFrame(); err != nil {
			log.Errorf("frame %d: %v", e.frames.Load(), err)
			e.fail(err)
			return
		}
		if e.profilingEnabled {
			e.profiler.Tick()
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - e.now().Sub(frameStart); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)
	if !e.running.Load() {
		e.engineTickRate = newRate
		return
	}
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) Snapshot(ctx context.Context, path string) error {
	if e.tonemap == nil {
		return ErrNotInitialized
	}
	return snapshot.Save(ctx, e.renderer, e.tonemap.Display(), path)
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Store() *params.Store {
	return e.store
}

func (e *engine) Controller() camera.CameraController {
	return e.controller
}

func (e *engine) Timer() profiler.Timer {
	return e.timer
}

func (e *engine) SampleCount() uint32 {
	return e.sampleCount.Load()
}

func (e *engine) Frames() uint64 {
	return e.frames.Load()
}

func (e *engine) Release() {
	e.releaseStages()
	if e.renderer != nil {
		e.renderer.Release()
		e.renderer = nil
	}
}

// releaseStages frees everything Init created on the renderer.
func (e *engine) releaseStages() {
	if e.timer != nil {
		e.timer.Release()
		e.timer = nil
	}
	if e.present != nil {
		e.present.Release()
		e.present = nil
	}
	if e.tonemap != nil {
		e.tonemap.Release()
		e.tonemap = nil
	}
	if e.accum != nil {
		e.accum.Release()
		e.accum = nil
	}
	if e.trace != nil {
		e.trace.Release()
		e.trace = nil
	}
}

func (e *engine) sceneName() string {
	if e.description != nil {
		return "custom"
	}
	return e.preset.String()
}
