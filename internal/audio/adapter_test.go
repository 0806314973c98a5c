package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/RavennaNMA/defensor/internal/config"
)

type fakeSynth struct {
	samplesPerChar int
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]float64, error) {
	n := len([]rune(text)) * f.samplesPerChar
	if n < 1 {
		n = 1
	}
	pcm := make([]float64, n)
	for i := range pcm {
		pcm[i] = 0.01
	}
	return pcm, nil
}

type fakePlayer struct{}

func (fakePlayer) Play(ctx context.Context, pcm []float64, sampleRate int) error {
	d := time.Duration(float64(len(pcm)) / float64(sampleRate) * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestAdapterLifecycleEventsFireInOrder(t *testing.T) {
	a := NewAdapter(&fakeSynth{samplesPerChar: 50}, fakePlayer{}, config.VoiceModConfig{})

	var mu sync.Mutex
	var events []string
	a.OnStarted = func() { mu.Lock(); events = append(events, "started"); mu.Unlock() }
	a.OnChunk = func(string) { mu.Lock(); events = append(events, "chunk"); mu.Unlock() }
	a.OnFinished = func() { mu.Lock(); events = append(events, "finished"); mu.Unlock() }

	if err := a.Enqueue(context.Background(), "First sentence. Second sentence."); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) < 4 || events[0] != "started" || events[len(events)-1] != "finished" {
		t.Fatalf("unexpected event order: %v", events)
	}
}

func TestAdapterProgressIsMonotonicAndBounded(t *testing.T) {
	a := NewAdapter(&fakeSynth{samplesPerChar: 200}, fakePlayer{}, config.VoiceModConfig{})

	var mu sync.Mutex
	last := -1
	var total int
	a.OnProgress = func(pos, tot int) {
		mu.Lock()
		defer mu.Unlock()
		total = tot
		if pos < last {
			t.Errorf("progress went backwards: %d after %d", pos, last)
		}
		if pos > tot {
			t.Errorf("progress %d exceeded total %d", pos, tot)
		}
		last = pos
	}

	if err := a.Enqueue(context.Background(), "A short sentence here."); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if last != total {
		t.Errorf("expected final progress to reach total %d, got %d", total, last)
	}
}

func TestAdapterClearStopsPlaybackEarly(t *testing.T) {
	a := NewAdapter(&fakeSynth{samplesPerChar: 5000}, fakePlayer{}, config.VoiceModConfig{})

	done := make(chan error, 1)
	go func() { done <- a.Enqueue(context.Background(), "A very long sentence that takes a while to speak.") }()

	time.Sleep(5 * time.Millisecond)
	a.Clear()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Clear did not stop playback promptly")
	}
}

func TestAdapterSynthesizeErrorFiresOnError(t *testing.T) {
	a := NewAdapter(errSynth{}, fakePlayer{}, config.VoiceModConfig{})
	var gotErr error
	a.OnError = func(err error) { gotErr = err }

	err := a.Enqueue(context.Background(), "This will fail.")
	if err == nil || gotErr == nil {
		t.Fatalf("expected both returned and reported error, got err=%v reported=%v", err, gotErr)
	}
}

type errSynth struct{}

func (errSynth) Synthesize(ctx context.Context, text string) ([]float64, error) {
	return nil, errSynthFailure{}
}

type errSynthFailure struct{}

func (errSynthFailure) Error() string { return "synthesis failed" }
