// Package weapon times the per-tool image reveal and couples it to
// actuator pulses (spec §4.8).
package weapon

import (
	"context"
	"time"

	"github.com/RavennaNMA/defensor/internal/actuator"
	"github.com/RavennaNMA/defensor/internal/config"
)

// Pulser is the subset of actuator.Dispatcher the sequencer needs.
type Pulser interface {
	Enqueue(cmd actuator.Command)
}

// Display is called once a tool's fade-in begins; the caller owns actual
// image rendering and fade timing on screen (out of scope here, spec §1).
type Display func(tool config.ToolSpec)

// Sequencer runs the ordered tool-ID display loop (spec §4.8).
type Sequencer struct {
	tools map[string]config.ToolSpec

	switchDelay time.Duration

	OnShow   Display
	OnUnknown func(id string)
	Logf      func(format string, args ...any)
}

// New builds a Sequencer from the configured tool table, keyed by ID.
func New(tools []config.ToolSpec, switchDelay time.Duration) *Sequencer {
	byID := make(map[string]config.ToolSpec, len(tools))
	for _, t := range tools {
		byID[t.ID] = t
	}
	return &Sequencer{tools: byID, switchDelay: switchDelay}
}

// Run displays toolIDs in order, pulsing the dispatcher for each tool that
// has a pin. Unknown IDs are skipped with a log warning (spec §4.8); an ID
// with no pin skips the pulse but still runs the visual. Run returns early
// if ctx is cancelled (spec §5: Reset cancels pending weapon pulses).
func (s *Sequencer) Run(ctx context.Context, toolIDs []string, dispatcher Pulser) {
	for _, id := range toolIDs {
		if ctx.Err() != nil {
			return
		}
		tool, ok := s.tools[id]
		if !ok {
			s.logf("weapon: unknown tool id %q, skipping", id)
			if s.OnUnknown != nil {
				s.OnUnknown(id)
			}
			continue
		}

		if s.OnShow != nil {
			s.OnShow(tool)
		}
		if tool.Pin != nil {
			dispatcher.Enqueue(actuator.Pulse(*tool.Pin, tool.PreDelayMs, tool.PulseHighMs, tool.PostDelayMs))
		}

		wait := secondsToDuration(tool.FadeInS + tool.DisplayS + tool.FadeOutS)
		if !sleepCtx(ctx, wait) {
			return
		}
		if !sleepCtx(ctx, s.switchDelay) {
			return
		}
	}
}

func (s *Sequencer) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
