package show

import "time"

// ConductorState is one of the show's exhaustive, ordered states (spec §3).
type ConductorState int

const (
	Detecting ConductorState = iota
	ScreenshotTrigger
	LlmLoading
	Caption
	Spotlight
	ImgShow
	Reset
)

func (s ConductorState) String() string {
	switch s {
	case Detecting:
		return "Detecting"
	case ScreenshotTrigger:
		return "ScreenshotTrigger"
	case LlmLoading:
		return "LlmLoading"
	case Caption:
		return "Caption"
	case Spotlight:
		return "Spotlight"
	case ImgShow:
		return "ImgShow"
	case Reset:
		return "Reset"
	default:
		return "Unknown"
	}
}

// LLMResponse is the vision/language model's recommendation (spec §3, §6).
type LLMResponse struct {
	CaptionEN string
	CaptionTC string
	ToolIDs   []string
}

// DefaultLLMResponse is substituted on a no_llm_mode run or an LLM timeout
// (spec §4.9, §7).
func DefaultLLMResponse() LLMResponse {
	return LLMResponse{CaptionEN: "", CaptionTC: "", ToolIDs: []string{"01", "02"}}
}

// EventKind enumerates the Conductor's accepted event types (spec §4.1).
type EventKind int

const (
	EventFrameFaceUpdate EventKind = iota
	EventLlmReady
	EventCaptionComplete
	EventSpotlightReady
	EventWeaponSequenceComplete
	EventCooldownElapsed
)

// Event is a tagged union over the Conductor's input alphabet. Only the
// field relevant to Kind is read.
type Event struct {
	Kind     EventKind
	Present  bool // EventFrameFaceUpdate
	Response LLMResponse // EventLlmReady
}

// RequestKind enumerates the side effects the Conductor emits.
type RequestKind int

const (
	RequestScreenshot RequestKind = iota
	RequestLlm
	RequestCaptionDisplay
	RequestSpotlight
	RequestWeaponDisplay
	RequestReset
)

// Request is one emitted side effect, delivered through the Conductor's
// Emit callback; the composing installation package sets Emit and drives
// the concrete subsystems (camera, LLM client, SSR, weapon sequencer).
type Request struct {
	Kind     RequestKind
	Response LLMResponse // RequestCaptionDisplay
	ToolIDs  []string    // RequestWeaponDisplay
}

// Conductor is the show's central state machine (spec §4.1). It owns no
// I/O: transitions are driven by OnEvent/Tick and observed through Emit
// and Logf.
type Conductor struct {
	state ConductorState

	detectDuration     time.Duration
	llmResponseTimeout time.Duration
	cooldownTime       time.Duration
	noLLMMode          bool

	presenceTracking bool
	presenceStart    time.Time

	llmLoadingStart time.Time
	resetStart      time.Time

	captionActive bool // I5 re-entrancy guard
	response      LLMResponse

	Emit func(Request)
	Logf func(format string, args ...any)
}

// NewConductor creates a Conductor at rest in Detecting.
func NewConductor(detectDuration, llmResponseTimeout, cooldownTime time.Duration, noLLMMode bool) *Conductor {
	return &Conductor{
		state:              Detecting,
		detectDuration:     detectDuration,
		llmResponseTimeout: llmResponseTimeout,
		cooldownTime:       cooldownTime,
		noLLMMode:          noLLMMode,
	}
}

// State returns the current show state.
func (c *Conductor) State() ConductorState { return c.state }

func (c *Conductor) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Conductor) emit(r Request) {
	if c.Emit != nil {
		c.Emit(r)
	}
}

func (c *Conductor) transition(to ConductorState, trigger string) {
	c.logf("conductor: %s -> %s (%s)", c.state, to, trigger)
	if c.state == Caption {
		c.captionActive = false
	}
	c.state = to
	if to == Caption {
		c.captionActive = true
	}
}

// reject logs a dropped event, per spec §4.1/§7: "events outside the
// accepting set for the current state are dropped and logged."
func (c *Conductor) reject(kind EventKind) {
	c.logf("conductor: dropped event %d in state %s", kind, c.state)
}

// OnEvent applies one input event to the state machine (spec §4.1's
// on_event(Event) contract).
func (c *Conductor) OnEvent(ev Event, now time.Time) {
	switch c.state {
	case Detecting:
		if ev.Kind != EventFrameFaceUpdate {
			c.reject(ev.Kind)
			return
		}
		c.handlePresence(ev.Present, now)

	case ScreenshotTrigger:
		// Only ScreenshotSaved (below) drives this transient state; any
		// conductor Event here is dropped.
		c.reject(ev.Kind)

	case LlmLoading:
		if ev.Kind != EventLlmReady {
			c.reject(ev.Kind)
			return
		}
		c.response = ev.Response
		c.transition(Caption, "LlmReady")
		c.emit(Request{Kind: RequestCaptionDisplay, Response: c.response})

	case Caption:
		if ev.Kind != EventCaptionComplete {
			c.reject(ev.Kind)
			return
		}
		c.transition(Spotlight, "CaptionComplete")
		c.emit(Request{Kind: RequestSpotlight})

	case Spotlight:
		if ev.Kind != EventSpotlightReady {
			c.reject(ev.Kind)
			return
		}
		c.transition(ImgShow, "SpotlightReady")
		c.emit(Request{Kind: RequestWeaponDisplay, ToolIDs: c.response.ToolIDs})

	case ImgShow:
		if ev.Kind != EventWeaponSequenceComplete {
			c.reject(ev.Kind)
			return
		}
		c.transition(Reset, "WeaponSequenceComplete")
		c.resetStart = now
		c.emit(Request{Kind: RequestReset})

	case Reset:
		if ev.Kind != EventCooldownElapsed {
			c.reject(ev.Kind)
			return
		}
		c.clearSession()
		c.transition(Detecting, "CooldownElapsed")

	default:
		c.reject(ev.Kind)
	}
}

func (c *Conductor) handlePresence(present bool, now time.Time) {
	if !present {
		c.presenceTracking = false
		return
	}
	if !c.presenceTracking {
		c.presenceTracking = true
		c.presenceStart = now
		return
	}
	if now.Sub(c.presenceStart) >= c.detectDuration {
		c.presenceTracking = false
		c.transition(ScreenshotTrigger, "FrameFaceUpdate sustained")
		c.emit(Request{Kind: RequestScreenshot})
	}
}

// NotifyScreenshotSaved is called by the screenshot writer once the file
// has been written; it is ScreenshotTrigger's only exit signal (spec §4.1:
// "transient, no timer; exits on the first downstream signal").
func (c *Conductor) NotifyScreenshotSaved(now time.Time) {
	if c.state != ScreenshotTrigger {
		return
	}
	if c.noLLMMode {
		c.response = DefaultLLMResponse()
		c.transition(Caption, "screenshot saved, no_llm_mode")
		c.emit(Request{Kind: RequestCaptionDisplay, Response: c.response})
		return
	}
	c.llmLoadingStart = now
	c.transition(LlmLoading, "screenshot saved")
	c.emit(Request{Kind: RequestLlm})
}

// Tick drives the timers that are not triggered by an explicit event:
// the LlmLoading timeout and the Reset cooldown.
func (c *Conductor) Tick(now time.Time) {
	switch c.state {
	case LlmLoading:
		if now.Sub(c.llmLoadingStart) >= c.llmResponseTimeout {
			c.response = DefaultLLMResponse()
			c.transition(Caption, "llm_response_timeout")
			c.emit(Request{Kind: RequestCaptionDisplay, Response: c.response})
		}
	case Reset:
		if now.Sub(c.resetStart) >= c.cooldownTime {
			c.OnEvent(Event{Kind: EventCooldownElapsed}, now)
		}
	}
}

func (c *Conductor) clearSession() {
	c.response = LLMResponse{}
	c.captionActive = false
}
