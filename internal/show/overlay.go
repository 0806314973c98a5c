package show

import (
	"math/rand"

	"github.com/RavennaNMA/defensor/internal/config"
)

// Phase is one of the reticle's four animation phases (spec §4.3).
type Phase int

const (
	Phase1 Phase = 1
	Phase2 Phase = 2
	Phase3 Phase = 3
	Phase4 Phase = 4
)

// Reticle is the per-tracked-face overlay state. FramesElapsed is
// monotonic within the reticle's lifetime and survives target-position
// updates (invariant I4).
type Reticle struct {
	SmoothedCenterX, SmoothedCenterY float64
	TargetSize                       float64
	TweenSize                        float64
	OutsideSize                      float64
	CrossStartRatio                  float64
	CrossEndRatio                    float64
	FramesElapsed                    uint64
	Phase                            Phase

	innerRectAlpha float64
}

// NewReticle creates a reticle at rest, born the first time the tracker
// reports a face the overlay has not seen.
func NewReticle() *Reticle {
	return &Reticle{Phase: Phase1}
}

// Tick advances the reticle by one frame toward target, using exponential
// easing per phase (spec §4.3). It must be called exactly once per frame
// at ~60Hz; FramesElapsed increases by exactly 1 on every call.
func (r *Reticle) Tick(target BBox, cfg config.AnimConfig) {
	targetCenterX := target.CenterX()
	targetCenterY := target.CenterY() - 0.20*float64(target.H)
	targetSize := float64(target.W) * cfg.FrameSizeMultiplier

	if r.FramesElapsed == 0 {
		r.SmoothedCenterX = targetCenterX
		r.SmoothedCenterY = targetCenterY
		r.TweenSize = targetSize
		r.OutsideSize = targetSize
	} else {
		alpha := cfg.PositionSmooth
		r.SmoothedCenterX += (targetCenterX - r.SmoothedCenterX) * alpha
		r.SmoothedCenterY += (targetCenterY - r.SmoothedCenterY) * alpha

		phaseAlpha := cfg.Phases[r.phaseIndex()].Alpha
		r.TweenSize += (targetSize - r.TweenSize) * phaseAlpha
		r.OutsideSize += (targetSize - r.OutsideSize) * phaseAlpha
	}
	r.TargetSize = targetSize

	r.FramesElapsed++
	r.advancePhase(cfg)
	r.advanceCrossHair(cfg)
	r.advanceInnerRect(cfg)
}

func (r *Reticle) phaseIndex() int {
	if r.Phase < Phase1 {
		return 0
	}
	if r.Phase > Phase4 {
		return 3
	}
	return int(r.Phase) - 1
}

// advancePhase is a pure function of FramesElapsed and is therefore
// non-decreasing until clamped at Phase4, independent of target jitter.
func (r *Reticle) advancePhase(cfg config.AnimConfig) {
	d := cfg.StateDurations
	t := r.FramesElapsed
	b1 := uint64(max0(d[0]))
	b2 := b1 + uint64(max0(d[1]))
	b3 := b2 + uint64(max0(d[2]))

	switch {
	case t < b1:
		r.Phase = Phase1
	case t < b2:
		r.Phase = Phase2
	case t < b3:
		r.Phase = Phase3
	default:
		r.Phase = Phase4
	}
}

func (r *Reticle) advanceCrossHair(cfg config.AnimConfig) {
	if r.Phase >= Phase3 {
		target := cfg.Phases[2].CrossStartRatio
		alpha := cfg.Phases[2].Alpha
		r.CrossStartRatio += (target - r.CrossStartRatio) * alpha
	}
	if r.Phase >= Phase4 {
		target := cfg.Phases[3].CrossEndRatio
		alpha := cfg.Phases[3].Alpha
		r.CrossEndRatio += (target - r.CrossEndRatio) * alpha
	}
}

func (r *Reticle) advanceInnerRect(cfg config.AnimConfig) {
	if r.Phase >= Phase2 {
		target := cfg.Phases[1].InnerRectAlpha
		alpha := cfg.Phases[1].Alpha
		r.innerRectAlpha += (target - r.innerRectAlpha) * alpha
	}
}

// InnerRectAlpha returns the current eased alpha of the phase-2 inner
// translucent rectangle.
func (r *Reticle) InnerRectAlpha() float64 { return r.innerRectAlpha }

// ShouldRender applies the per-draw flicker (spec §4.3): independently,
// each draw has probability p of being skipped.
func ShouldRender(rng *rand.Rand, flickerProbability float64) bool {
	return rng.Float64() >= flickerProbability
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
