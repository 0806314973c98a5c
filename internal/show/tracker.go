package show

import (
	"math"
	"sync"
	"time"
)

// ringSize is the number of raw bboxes kept for smoothing (spec N=5).
const ringSize = 5

// smoothWeights gives the weight of the j-th most recent ring entry
// (index 0 = most recent), highest weight to the most recent sample.
var smoothWeights = []float64{0.4, 0.3, 0.2, 0.1}

// Episode tracks one maximal interval of continuous face presence.
type Episode struct {
	StartedAt     time.Time
	LastSeenAt    time.Time
	CurrentBBox   BBox
	SmoothedBBox  BBox
}

// TrackResult is returned by Tracker.Update for each frame.
type TrackResult struct {
	Smoothed        BBox
	Present         bool // an episode is currently active
	EpisodeDuration time.Duration
}

// Tracker converts per-frame raw detections into a sustained-presence
// signal with hysteresis against shimmer (spec §4.2).
type Tracker struct {
	mu sync.Mutex

	sensitivity   float64
	maxLostFrames int

	ring        []BBox // oldest first, most recent last
	lostCount   int
	hasSmoothed bool
	smoothed    BBox

	episodeActive bool
	episodeStart  time.Time
	lastSeen      time.Time
}

// NewTracker creates a tracker. sensitivity gates raw detections into the
// ring (§9 open-question decision 3); maxLostFrames is the grace window
// before an episode ends.
func NewTracker(sensitivity float64, maxLostFrames int) *Tracker {
	return &Tracker{
		sensitivity:   sensitivity,
		maxLostFrames: maxLostFrames,
	}
}

// Update feeds one frame's detection (nil if no face was found) into the
// tracker and returns the current smoothed output.
func (t *Tracker) Update(raw *BBox, now time.Time) TrackResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if raw != nil && raw.Confidence >= t.sensitivity {
		t.acceptRaw(*raw, now)
	} else {
		t.noDetection()
	}

	if !t.episodeActive {
		return TrackResult{Present: false}
	}
	return TrackResult{
		Smoothed:        t.smoothed,
		Present:         true,
		EpisodeDuration: now.Sub(t.episodeStart),
	}
}

func (t *Tracker) acceptRaw(raw BBox, now time.Time) {
	if !t.episodeActive {
		t.episodeActive = true
		t.episodeStart = now
		t.ring = nil
		t.hasSmoothed = false
	}
	t.lastSeen = now
	t.lostCount = 0

	if len(t.ring) > 0 && !isSignificantChange(t.ring[len(t.ring)-1], raw) {
		// Trivial change: re-emit the previous smoothed bbox, do not
		// perturb the ring (hysteresis against shimmer).
		return
	}

	t.ring = append(t.ring, raw)
	if len(t.ring) > ringSize {
		t.ring = t.ring[len(t.ring)-ringSize:]
	}
	t.smoothed = weightedAverage(t.ring)
	t.hasSmoothed = true
}

func (t *Tracker) noDetection() {
	if !t.episodeActive {
		return
	}
	t.lostCount++
	if t.lostCount > t.maxLostFrames {
		t.episodeActive = false
		t.ring = nil
		t.hasSmoothed = false
		t.lostCount = 0
	}
	// else: episode continues, last smoothed bbox is still emitted.
}

// isSignificantChange implements spec §4.2's acceptance test.
func isSignificantChange(prev, next BBox) bool {
	dx := math.Abs(float64(next.X - prev.X))
	dy := math.Abs(float64(next.Y - prev.Y))
	if dx > 5 || dy > 5 {
		return true
	}
	prevArea := float64(prev.Area())
	if prevArea == 0 {
		return true
	}
	deltaArea := math.Abs(float64(next.Area())-prevArea) / prevArea
	return deltaArea > 0.10
}

// weightedAverage computes the smoothed bbox from the most recent entries
// of ring, most recent weighted highest (spec §4.2).
func weightedAverage(ring []BBox) BBox {
	n := len(ring)
	k := n
	if k > len(smoothWeights) {
		k = len(smoothWeights)
	}
	recent := ring[n-k:] // oldest-first within the k most recent entries
	weights := smoothWeights[len(smoothWeights)-k:] // spec §4.2: take the last k weights

	var sumW, sx, sy, sw, sh, sc float64
	for i, b := range recent {
		// recent[i] is the (k-1-i)-th most recent sample (0 = most recent).
		w := weights[k-1-i]
		sumW += w
		sx += w * float64(b.X)
		sy += w * float64(b.Y)
		sw += w * float64(b.W)
		sh += w * float64(b.H)
		sc += w * b.Confidence
	}
	return BBox{
		X:          int(math.Round(sx / sumW)),
		Y:          int(math.Round(sy / sumW)),
		W:          int(math.Round(sw / sumW)),
		H:          int(math.Round(sh / sumW)),
		Confidence: sc / sumW,
	}
}
