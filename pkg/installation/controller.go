// Package installation composes the camera, show conductor, caption
// engine, TTS-DSP adapter, actuator dispatcher, SSR lighting, and weapon
// sequencer into one runnable installation (spec §1). Library-first, the
// way pkg/miface.Tracker composes its own subsystems: everything outside
// the composed core (concrete camera backend, LLM client, TTS engine,
// serial port) is injected before Start.
package installation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RavennaNMA/defensor/internal/actuator"
	"github.com/RavennaNMA/defensor/internal/audio"
	"github.com/RavennaNMA/defensor/internal/bus"
	"github.com/RavennaNMA/defensor/internal/camera"
	"github.com/RavennaNMA/defensor/internal/config"
	"github.com/RavennaNMA/defensor/internal/llm"
	"github.com/RavennaNMA/defensor/internal/show"
	"github.com/RavennaNMA/defensor/internal/weapon"
)

// Common errors returned by Controller.
var (
	ErrAlreadyRunning = errors.New("installation: already running")
	ErrNotRunning     = errors.New("installation: not running")
	ErrClosed         = errors.New("installation: closed")
)

// Topics published on the Controller's event bus for telemetry
// consumers (spec §6's debug view) to subscribe to without coupling to
// the controller's internals.
const (
	TopicState     bus.Topic = "state"     // show.ConductorState
	TopicLog       bus.Topic = "log"       // string
	TopicFrame     bus.Topic = "frame"     // FrameTelemetry
	TopicForceTerm bus.Topic = "force"     // "reason target" caption unstick events
)

// LLMClient is the external vision/language model collaborator (spec
// §1, §4.9): given a screenshot it returns raw text for internal/llm to
// parse.
type LLMClient interface {
	Query(ctx context.Context, imagePath string, prompt string) (string, error)
}

// FrameTelemetry is published on TopicFrame once per tick for the debug
// view (spec §6): state, face presence, detection-episode duration, and
// whether the reticle is active.
type FrameTelemetry struct {
	State           show.ConductorState
	Present         bool
	EpisodeDuration time.Duration
	ReticleActive   bool
}

type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateClosed
)

// Controller is the top-level coordinator. It owns no concrete I/O
// backend itself; CameraSource, Detector, LLMClient, the serial
// Dispatcher, and the TTS Synthesizer/Player are all injected.
type Controller struct {
	mu    sync.RWMutex
	state runState

	cfg *config.Config
	bus *bus.Bus

	tracker   *show.Tracker
	reticle   *show.Reticle
	caption   *show.Caption
	conductor *show.Conductor
	sequencer *weapon.Sequencer

	dispatcher *actuator.Dispatcher
	ssr        *actuator.SSR

	cameraSource camera.Source
	detector     camera.Detector
	llmClient    LLMClient
	audioAdapter *audio.Adapter

	screenshotDir string
	cameraIndex   int
	cameraWidth   int
	cameraHeight  int
	cameraFPS     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	weaponCtx    context.Context
	weaponCancel context.CancelFunc

	llmGeneration int
	lastFrame     camera.Frame
	hasLastFrame  bool
	lastScreenshotPath string

	// currentState mirrors conductor.State() for readers outside the tick
	// goroutine (State() is called from arbitrary caller goroutines, but
	// show.Conductor itself is only ever touched from the tick loop).
	currentState atomic.Int64

	// currentToolIDs mirrors the weapon sequence currently on display, for
	// the debug telemetry view's "current tool-id list" (spec §6).
	currentToolIDs atomic.Value // []string

	// pendingEvents carries Conductor events produced by background
	// goroutines (the LLM query, the weapon sequencer). show.Conductor is
	// not safe for concurrent use; every OnEvent/Tick call must happen on
	// the tick loop's goroutine, so async completions are funneled through
	// this channel and drained at the top of every tick instead of calling
	// OnEvent directly.
	pendingEvents chan show.Event

	// pendingTTS carries progress/completion callbacks from the audio
	// adapter's own goroutine, for the same reason: show.Caption is not
	// safe for concurrent use with the tick loop's caption.Tick calls.
	pendingTTS chan ttsEvent

	// OnFatal is called when a screenshot cannot be written (one of spec
	// §4.9's fatal conditions); the caller is expected to report and halt.
	// Audio device initialization failures are not reported through it.
	OnFatal func(error)
}

// New builds a Controller from cfg. screenshotDir is where screenshot
// files are written (spec §7: "webcam-shots/").
func New(cfg *config.Config, screenshotDir string) *Controller {
	c := &Controller{
		state:         stateIdle,
		cfg:           cfg,
		bus:           bus.New(),
		tracker:       show.NewTracker(cfg.Period.DetectionSensitivity, cfg.Period.MaxLostFrames),
		caption:       show.NewCaption(cfg.Period.CaptionTypingSpeed, secondsToDuration(cfg.Period.CaptionWaitAfter)),
		sequencer:     weapon.New(cfg.Weapons, secondsToDuration(cfg.Period.WeaponSwitchDelay)),
		screenshotDir: screenshotDir,
		cameraWidth:   1280,
		cameraHeight:  720,
		cameraFPS:     30,
		weaponCtx:     context.Background(),
		pendingEvents: make(chan show.Event, 8),
		pendingTTS:    make(chan ttsEvent, 64),
	}

	c.conductor = show.NewConductor(
		secondsToDuration(cfg.Period.DetectDuration),
		secondsToDuration(cfg.Period.LLMResponseTimeout),
		secondsToDuration(cfg.Period.CooldownTime),
		false,
	)
	c.conductor.Emit = c.handleRequest
	c.conductor.Logf = c.logf

	c.caption.OnForceComplete = func(reason string, target int) {
		c.bus.Publish(TopicForceTerm, fmt.Sprintf("%s %d", reason, target))
	}

	c.sequencer.Logf = c.logf
	c.sequencer.OnUnknown = func(id string) {
		c.logf("weapon: unknown tool id %q requested by LLM response", id)
	}

	c.currentState.Store(int64(c.conductor.State()))
	c.currentToolIDs.Store([]string{})
	return c
}

// SetNoLLMMode toggles the startup `no_llm_mode` flag (spec §4.9). Must
// be called before Start.
func (c *Controller) SetNoLLMMode(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set no_llm_mode: %w", ErrAlreadyRunning)
	}
	c.conductor = show.NewConductor(
		secondsToDuration(c.cfg.Period.DetectDuration),
		secondsToDuration(c.cfg.Period.LLMResponseTimeout),
		secondsToDuration(c.cfg.Period.CooldownTime),
		enabled,
	)
	c.conductor.Emit = c.handleRequest
	c.conductor.Logf = c.logf
	c.currentState.Store(int64(c.conductor.State()))
	return nil
}

// SetCameraSource injects the physical camera backend. Must be called
// before Start.
func (c *Controller) SetCameraSource(src camera.Source, deviceID, width, height, fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set camera source: %w", ErrAlreadyRunning)
	}
	c.cameraSource = src
	c.cameraIndex, c.cameraWidth, c.cameraHeight, c.cameraFPS = deviceID, width, height, fps
	return nil
}

// SetDetector injects the face detector. Must be called before Start.
func (c *Controller) SetDetector(d camera.Detector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set detector: %w", ErrAlreadyRunning)
	}
	c.detector = d
	return nil
}

// SetLLMClient injects the vision/language model collaborator. Must be
// called before Start.
func (c *Controller) SetLLMClient(client LLMClient) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set LLM client: %w", ErrAlreadyRunning)
	}
	c.llmClient = client
	return nil
}

// SetSerialPort opens the MCU link at portName and wires the SSR
// controller to it. Must be called before Start.
func (c *Controller) SetSerialPort(portName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set serial port: %w", ErrAlreadyRunning)
	}
	d, err := actuator.Open(portName)
	if err != nil {
		return fmt.Errorf("installation: opening serial port %q: %w", portName, err)
	}
	c.dispatcher = d
	c.ssr = actuator.New(d,
		actuator.ChannelSpec{Pin: c.cfg.SSR.SSR1.Pin, PreDelayMs: c.cfg.SSR.SSR1.PreDelayMs},
		actuator.ChannelSpec{Pin: c.cfg.SSR.SSR2.Pin, PreDelayMs: c.cfg.SSR.SSR2.PreDelayMs},
	)
	return nil
}

// SetAudio injects the TTS synthesizer and playback sink, enabling
// TTS-synced captions. Without this call, captions fall back to the
// non-TTS typing-speed mode (spec §4.4/§4.5).
func (c *Controller) SetAudio(synth audio.Synthesizer, player audio.Player) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return fmt.Errorf("installation: cannot set audio: %w", ErrAlreadyRunning)
	}
	c.audioAdapter = audio.NewAdapter(synth, player, c.cfg.VoiceMod)
	return nil
}

// Bus returns the telemetry event bus for debug-view consumers (spec §6).
func (c *Controller) Bus() *bus.Bus { return c.bus }

// State returns the conductor's current show state. Safe to call from
// any goroutine: show.Conductor itself is only ever driven from the
// tick loop, so this reads a mirror updated once per tick instead of
// touching the conductor directly.
func (c *Controller) State() show.ConductorState {
	return show.ConductorState(c.currentState.Load())
}

// ToolIDs returns the weapon sequence currently on display, for the
// debug telemetry view (spec §6). Empty outside ImgShow.
func (c *Controller) ToolIDs() []string {
	ids, _ := c.currentToolIDs.Load().([]string)
	return ids
}

// Dispatcher exposes the injected serial dispatcher, or nil if none was
// set via SetSerialPort, for the debug telemetry view's connection state
// and per-pin level reporting (spec §6). The field is only ever written
// before Start, so reading it afterward from any goroutine is safe.
func (c *Controller) Dispatcher() *actuator.Dispatcher { return c.dispatcher }

func (c *Controller) logf(format string, args ...any) {
	c.bus.Publish(TopicLog, fmt.Sprintf(format, args...))
}

// Start opens the camera (if one was injected) and begins the show loop.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return ErrAlreadyRunning
	case stateClosed:
		return ErrClosed
	}

	if c.cameraSource != nil {
		if err := camera.OpenSource(c.cameraSource, c.cameraIndex, c.cameraWidth, c.cameraHeight, c.cameraFPS); err != nil {
			c.logf("camera: %v, starting in Detecting with no feed (spec §4.9)", err)
		}
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.state = stateRunning

	c.wg.Add(1)
	go c.runLoop()
	return nil
}

// Stop halts the show loop without releasing injected resources.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != stateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.cancel()
	c.state = stateIdle
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// Close stops the show loop and releases every injected resource.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == stateRunning {
		c.cancel()
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.wg.Wait()

	var errs []error
	if c.cameraSource != nil {
		if err := c.cameraSource.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.bus.Close()

	if len(errs) > 0 {
		return fmt.Errorf("installation: closing: %v", errs)
	}
	return nil
}

const tickRate = 60 // Hz, overlay/conductor/caption cadence (spec §4.3's "~60Hz").

func (c *Controller) runLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

// ttsEvent is a progress or completion notification from the audio
// adapter's playback goroutine.
type ttsEvent struct {
	done       bool
	charPos    int
	totalChars int
}

// drainPendingEvents applies every Conductor event and caption/TTS
// notification queued by background goroutines since the last tick, on
// the tick loop's own goroutine.
func (c *Controller) drainPendingEvents(now time.Time) {
	for drained := false; !drained; {
		select {
		case ev := <-c.pendingEvents:
			prevState := c.conductor.State()
			c.conductor.OnEvent(ev, now)
			if newState := c.conductor.State(); newState != prevState {
				c.bus.Publish(TopicState, newState)
			}
		default:
			drained = true
		}
	}
	for drained := false; !drained; {
		select {
		case ev := <-c.pendingTTS:
			if ev.done {
				c.caption.OnTTSDone()
			} else {
				c.caption.OnTTSProgress(ev.charPos, ev.totalChars, now)
			}
		default:
			drained = true
		}
	}
}

func (c *Controller) tick(now time.Time) {
	c.drainPendingEvents(now)

	prevState := c.conductor.State()

	present, bbox := c.sampleDetection(now)

	result := c.tracker.Update(bbox, now)
	c.updateReticle(result, now)

	c.conductor.OnEvent(show.Event{Kind: show.EventFrameFaceUpdate, Present: present}, now)
	c.conductor.Tick(now)

	if c.conductor.State() == show.Caption {
		c.caption.Tick(now)
		if s := c.caption.Session(); s != nil && s.AllDone() {
			c.conductor.OnEvent(show.Event{Kind: show.EventCaptionComplete}, now)
		}
	}

	if newState := c.conductor.State(); newState != prevState {
		c.bus.Publish(TopicState, newState)
	}

	finalState := c.conductor.State()
	c.currentState.Store(int64(finalState))

	c.bus.Publish(TopicFrame, FrameTelemetry{
		State:           finalState,
		Present:         result.Present,
		EpisodeDuration: result.EpisodeDuration,
		ReticleActive:   c.reticle != nil,
	})
}

// sampleDetection reads one camera frame and runs the detector, caching
// the frame for later screenshot capture. A camera or detector error is
// treated as "no detection this frame" per spec §4.9.
func (c *Controller) sampleDetection(now time.Time) (bool, *show.BBox) {
	if c.cameraSource == nil || c.detector == nil {
		return false, nil
	}
	frame, err := c.cameraSource.Read()
	if err != nil {
		return false, nil
	}
	c.lastFrame = frame
	c.hasLastFrame = true

	bbox, err := c.detector.DetectFace(frame)
	if err != nil || bbox == nil {
		return false, nil
	}
	return true, bbox
}

func (c *Controller) updateReticle(result show.TrackResult, now time.Time) {
	if !result.Present {
		c.reticle = nil
		return
	}
	if c.reticle == nil {
		c.reticle = show.NewReticle()
	}
	c.reticle.Tick(result.Smoothed, c.cfg.Anim)
}

// handleRequest is the Conductor's Emit callback: it drives every
// concrete subsystem in response to a show-state transition (spec §4.1).
func (c *Controller) handleRequest(req show.Request) {
	switch req.Kind {
	case show.RequestScreenshot:
		c.doScreenshot()
	case show.RequestLlm:
		c.doLLMQuery()
	case show.RequestCaptionDisplay:
		c.doCaptionDisplay(req.Response)
	case show.RequestSpotlight:
		c.doSpotlight()
	case show.RequestWeaponDisplay:
		c.doWeaponDisplay(req.ToolIDs)
	case show.RequestReset:
		c.doReset()
	}
}

func (c *Controller) doScreenshot() {
	if !c.hasLastFrame {
		// No camera feed at all: degrade gracefully (spec §4.9's camera
		// transient-error handling) rather than treat this as the fatal
		// "filesystem refuses screenshots" case below.
		c.logf("screenshot: no camera frame available, skipping file write")
		c.conductor.NotifyScreenshotSaved(time.Now())
		return
	}
	path, err := camera.WriteScreenshot(c.screenshotDir, c.lastFrame, time.Now())
	if err != nil {
		c.logf("screenshot: write failed: %v", err)
		if c.OnFatal != nil {
			c.OnFatal(fmt.Errorf("installation: filesystem refuses screenshots: %w", err))
		}
		return
	}
	c.lastScreenshotPath = path
	c.conductor.NotifyScreenshotSaved(time.Now())
}

func (c *Controller) doLLMQuery() {
	c.mu.Lock()
	c.llmGeneration++
	generation := c.llmGeneration
	c.mu.Unlock()
	path := c.lastScreenshotPath

	var weaponList strings.Builder
	knownTools := make(map[string]bool, len(c.cfg.Weapons))
	for _, w := range c.cfg.Weapons {
		fmt.Fprintf(&weaponList, "- %s: %s\n", w.ID, w.DisplayName)
		knownTools[w.ID] = true
	}
	prompt := strings.Replace(c.cfg.Prompt.Template, "{weapon_list}", weaponList.String(), 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), secondsToDuration(c.cfg.Period.LLMResponseTimeout))
		defer cancel()

		raw, err := c.llmClient.Query(ctx, path, prompt)

		c.mu.Lock()
		stale := generation != c.llmGeneration
		c.mu.Unlock()
		if stale {
			return // conductor already moved on (timeout or reset)
		}
		if err != nil {
			c.logf("llm: query failed: %v, falling back to default response", err)
			c.pendingEvents <- show.Event{Kind: show.EventLlmReady, Response: show.DefaultLLMResponse()}
			return
		}

		parsed := llm.Parse(raw, knownTools)
		c.pendingEvents <- show.Event{Kind: show.EventLlmReady, Response: parsed}
	}()
}

func (c *Controller) doCaptionDisplay(resp show.LLMResponse) {
	ttsMode := c.audioAdapter != nil && c.cfg.TTS.Enabled
	c.caption.Start(resp.CaptionEN, resp.CaptionTC, ttsMode)

	if c.ssr != nil {
		c.ssr.RequestCaptionLighting()
	}

	if ttsMode && resp.CaptionEN != "" {
		c.audioAdapter.OnProgress = func(pos, total int) {
			c.pendingTTS <- ttsEvent{charPos: pos, totalChars: total}
		}
		c.audioAdapter.OnFinished = func() { c.pendingTTS <- ttsEvent{done: true} }
		c.audioAdapter.OnError = func(error) { c.pendingTTS <- ttsEvent{done: true} }
		go c.audioAdapter.Enqueue(c.ctx, resp.CaptionEN)
	} else {
		c.caption.OnTTSDone()
	}
}

func (c *Controller) doSpotlight() {
	if c.ssr == nil {
		c.conductor.OnEvent(show.Event{Kind: show.EventSpotlightReady}, time.Now())
		return
	}
	c.ssr.OnSpotlightReady = func() {
		// Fires from the dispatcher's worker goroutine once the relay Set
		// has actually executed (spec §4.7), never from the tick loop, so
		// it must go through pendingEvents like every other async signal.
		c.pendingEvents <- show.Event{Kind: show.EventSpotlightReady}
	}
	c.ssr.RequestSpotlight()
}

func (c *Controller) doWeaponDisplay(toolIDs []string) {
	c.currentToolIDs.Store(append([]string(nil), toolIDs...))
	c.weaponCtx, c.weaponCancel = context.WithCancel(context.Background())
	ctx := c.weaponCtx

	go func() {
		if c.dispatcher != nil {
			c.sequencer.Run(ctx, toolIDs, c.dispatcher)
		} else {
			c.sequencer.Run(ctx, toolIDs, noopPulser{})
		}
		if ctx.Err() == nil {
			c.pendingEvents <- show.Event{Kind: show.EventWeaponSequenceComplete}
		}
	}()
}

func (c *Controller) doReset() {
	c.currentToolIDs.Store([]string{})
	if c.weaponCancel != nil {
		c.weaponCancel()
	}
	if c.audioAdapter != nil {
		c.audioAdapter.Clear()
	}
	if c.ssr != nil {
		c.ssr.StopAll()
	}
	c.mu.Lock()
	c.llmGeneration++ // invalidate any in-flight LLM query
	c.mu.Unlock()

	if c.lastScreenshotPath != "" {
		if err := camera.DeleteScreenshot(c.lastScreenshotPath); err != nil {
			c.logf("screenshot: delete failed: %v", err)
		}
		c.lastScreenshotPath = ""
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// noopPulser substitutes for a missing Dispatcher so the weapon sequencer
// can still run its visual-only timing loop without a serial link (spec
// §4.9: "MCU disconnected ... visuals proceed without pulses").
type noopPulser struct{}

func (noopPulser) Enqueue(actuator.Command) {}
