package show

import (
	"testing"

	"github.com/RavennaNMA/defensor/internal/config"
)

func testAnimConfig() config.AnimConfig {
	cfg := config.Default().Anim
	return cfg
}

func TestReticleFramesElapsedMonotonic(t *testing.T) {
	r := NewReticle()
	cfg := testAnimConfig()

	targets := []BBox{
		{X: 100, Y: 100, W: 200, H: 200},
		{X: 300, Y: 50, W: 120, H: 140},
	}

	var lastPhase Phase
	for i := 0; i < 300; i++ {
		target := targets[i%2] // toggled every frame
		r.Tick(target, cfg)

		if r.FramesElapsed != uint64(i+1) {
			t.Fatalf("frame %d: expected FramesElapsed %d, got %d", i, i+1, r.FramesElapsed)
		}
		if r.Phase < lastPhase {
			t.Fatalf("frame %d: phase regressed from %d to %d", i, lastPhase, r.Phase)
		}
		lastPhase = r.Phase
	}
	if r.Phase != Phase4 {
		t.Errorf("expected reticle to clamp at Phase4 after 300 frames, got %d", r.Phase)
	}
}

func TestReticlePhaseBoundaries(t *testing.T) {
	r := NewReticle()
	cfg := testAnimConfig()
	target := BBox{X: 0, Y: 0, W: 100, H: 100}

	d := cfg.StateDurations
	total := d[0] + d[1] + d[2] + d[3]
	var sawPhase [5]bool
	for i := 0; i < total+10; i++ {
		r.Tick(target, cfg)
		sawPhase[r.Phase] = true
	}
	for p := 1; p <= 4; p++ {
		if !sawPhase[p] {
			t.Errorf("expected to observe phase %d", p)
		}
	}
}
