package actuator

import (
	"sync"

	"periph.io/x/periph/conn/gpio"
)

// Channel names the two lighting channels (spec §4.7).
type Channel int

const (
	SSR1 Channel = iota // caption lighting
	SSR2                // spotlight
)

// ChannelSpec describes one SSR channel's pin and pre-delay.
type ChannelSpec struct {
	Pin        uint8
	PreDelayMs int
}

// SSR drives the two stage-lighting relays. Requests are idempotent:
// re-requesting an already-asserted channel is a no-op. Release always
// drives every asserted pin LOW concurrently (I3).
type SSR struct {
	mu       sync.Mutex
	channels map[Channel]ChannelSpec
	asserted map[Channel]bool
	pending  map[uint8]func() // pin -> ready callback awaiting that pin's Set to execute

	dispatcher *Dispatcher

	OnCaptionLightingReady func()
	OnSpotlightReady       func()
}

// New creates an SSR controller bound to dispatcher, with ssr1/ssr2's
// pin and pre-delay per config. It takes over dispatcher.OnExecute to
// learn when an enqueued Set has actually been applied.
func New(dispatcher *Dispatcher, ssr1, ssr2 ChannelSpec) *SSR {
	s := &SSR{
		dispatcher: dispatcher,
		channels:   map[Channel]ChannelSpec{SSR1: ssr1, SSR2: ssr2},
		asserted:   make(map[Channel]bool),
		pending:    make(map[uint8]func()),
	}
	dispatcher.OnExecute = s.onExecute
	return s
}

// onExecute fires the ready callback waiting on cmd's pin, once the HIGH
// Set it corresponds to has actually been written to the wire (spec §4.7:
// spotlight_ready/caption_lighting_ready only fire after pre_delay_ms and
// the pin is asserted, not at enqueue time).
func (s *SSR) onExecute(cmd Command) {
	if cmd.Kind != CommandSet || cmd.Level != gpio.High {
		return
	}
	s.mu.Lock()
	ready := s.pending[cmd.Pin]
	delete(s.pending, cmd.Pin)
	s.mu.Unlock()
	if ready != nil {
		ready()
	}
}

// RequestCaptionLighting asserts SSR1 (spec §4.7: entering Caption).
func (s *SSR) RequestCaptionLighting() {
	s.request(SSR1, s.OnCaptionLightingReady)
}

// RequestSpotlight asserts SSR2 (spec §4.7: entering Spotlight).
func (s *SSR) RequestSpotlight() {
	s.request(SSR2, s.OnSpotlightReady)
}

func (s *SSR) request(ch Channel, ready func()) {
	s.mu.Lock()
	if s.asserted[ch] {
		s.mu.Unlock()
		return
	}
	s.asserted[ch] = true
	spec := s.channels[ch]
	failed := s.dispatcher.Failed()
	if !failed {
		s.pending[spec.Pin] = ready
	}
	s.mu.Unlock()

	s.dispatcher.Enqueue(Set(spec.Pin, gpio.High, spec.PreDelayMs))
	if failed && ready != nil {
		// Dispatcher already disabled: the Set above was dropped and
		// onExecute will never fire. Don't stall the show on a relay
		// that will never be driven (spec §4.9 degraded mode).
		ready()
	}
}

// StopAll releases every asserted channel to LOW, concurrently, and clears
// the asserted flags (spec §4.7: entering Reset, or an explicit
// stop_all_lighting; guarantees I3).
func (s *SSR) StopAll() {
	s.mu.Lock()
	var toRelease []ChannelSpec
	for ch, on := range s.asserted {
		if on {
			toRelease = append(toRelease, s.channels[ch])
		}
	}
	s.asserted = make(map[Channel]bool)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, spec := range toRelease {
		wg.Add(1)
		go func(spec ChannelSpec) {
			defer wg.Done()
			s.dispatcher.Enqueue(Set(spec.Pin, gpio.Low, 0))
		}(spec)
	}
	wg.Wait()
}

// Asserted reports whether ch is currently held HIGH.
func (s *SSR) Asserted(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asserted[ch]
}
