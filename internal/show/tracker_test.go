package show

import (
	"testing"
	"time"
)

func TestTrackerHysteresisSuppressesSmallDeltas(t *testing.T) {
	tr := NewTracker(0.5, 10)
	base := time.Now()

	first := BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 0.9}
	res := tr.Update(&first, base)
	if !res.Present {
		t.Fatal("expected presence after first detection")
	}
	smoothed1 := res.Smoothed

	// Deltas within the hysteresis band: <=5px, <=10% area.
	trivial := BBox{X: 103, Y: 102, W: 204, H: 204, Confidence: 0.9}
	res = tr.Update(&trivial, base.Add(33*time.Millisecond))
	if res.Smoothed != smoothed1 {
		t.Errorf("expected smoothed bbox unchanged for trivial delta, got %+v vs %+v", res.Smoothed, smoothed1)
	}

	// A larger delta must be reflected in the next emission.
	big := BBox{X: 150, Y: 100, W: 200, H: 200, Confidence: 0.9}
	res = tr.Update(&big, base.Add(66*time.Millisecond))
	if res.Smoothed == smoothed1 {
		t.Error("expected smoothed bbox to change after a significant delta")
	}
}

func TestTrackerTriggerTimingContinuousPresence(t *testing.T) {
	tr := NewTracker(0.5, 10)
	base := time.Now()
	box := BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 0.9}

	detectDuration := 3.0 * time.Second
	var triggered int
	frame := 33 * time.Millisecond
	for elapsed := time.Duration(0); elapsed < detectDuration+500*time.Millisecond; elapsed += frame {
		res := tr.Update(&box, base.Add(elapsed))
		if res.Present && res.EpisodeDuration >= 3*time.Second {
			triggered++
		}
	}
	if triggered == 0 {
		t.Error("expected the sustained-presence threshold to be reached at least once")
	}
}

func TestTrackerToleratesOneFrameGap(t *testing.T) {
	tr := NewTracker(0.5, 10)
	base := time.Now()
	box := BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 0.9}
	frame := 33 * time.Millisecond

	var lastPresent bool
	var maxDuration time.Duration
	for i := 0; i < 100; i++ {
		now := base.Add(time.Duration(i) * frame)
		var res TrackResult
		if i == 50 {
			// A single dropped frame inside the window must not end the episode.
			res = tr.Update(nil, now)
		} else {
			res = tr.Update(&box, now)
		}
		lastPresent = res.Present
		if res.EpisodeDuration > maxDuration {
			maxDuration = res.EpisodeDuration
		}
	}
	if !lastPresent {
		t.Error("expected episode to still be active after a single dropped frame")
	}
	if maxDuration < 2*time.Second {
		t.Errorf("expected episode duration to keep accumulating across the gap, got %v", maxDuration)
	}
}

func TestTrackerEpisodeEndsAfterExcessiveLoss(t *testing.T) {
	tr := NewTracker(0.5, 10)
	base := time.Now()
	box := BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 0.9}
	frame := 33 * time.Millisecond

	tr.Update(&box, base)
	var res TrackResult
	for i := 1; i <= 15; i++ {
		res = tr.Update(nil, base.Add(time.Duration(i)*frame))
	}
	if res.Present {
		t.Error("expected episode to end after exceeding max_lost_frames")
	}
}

func TestTrackerLowConfidenceRejected(t *testing.T) {
	tr := NewTracker(0.8, 10)
	base := time.Now()
	weak := BBox{X: 100, Y: 100, W: 200, H: 200, Confidence: 0.3}
	res := tr.Update(&weak, base)
	if res.Present {
		t.Error("expected a below-sensitivity detection to be treated as no detection")
	}
}
