package audio

import (
	"context"
	"sync"
	"time"

	"github.com/RavennaNMA/defensor/internal/config"
)

// Synthesizer is the external text-to-speech collaborator: given a chunk
// of text it returns a 24kHz mono PCM buffer (spec §4.5's "upstream
// synthesizer"). Implementations wrap whatever engine is installed; none
// is bundled here, mirroring how the upstream service treats its engine
// as pluggable (original_source/services/tts_service.py's engine_priority
// config key).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]float64, error)
}

// Player is the playback sink: it blocks until pcm has fully drained from
// the audio device (spec §4.5's "the next chunk never starts until the
// previous has drained").
type Player interface {
	Play(ctx context.Context, pcm []float64, sampleRate int) error
}

// progressHz is the rate at which Adapter posts progress events while a
// chunk plays (spec §4.5).
const progressHz = 50

// fastFinishRatio is the fraction of a chunk's estimated duration past
// which progress jumps immediately to the chunk's end (spec §4.5).
const fastFinishRatio = 0.75

// Adapter drives the chunk/synthesize/effects/play pipeline and reports
// progress back to the caption engine (spec §4.5).
type Adapter struct {
	synth  Synthesizer
	player Player
	voice  config.VoiceModConfig

	OnStarted  func()
	OnChunk    func(text string)
	OnProgress func(charPos, totalChars int)
	OnFinished func()
	OnError    func(err error)

	mu      sync.Mutex
	clearCh chan struct{}
}

// NewAdapter builds an adapter bound to one synthesizer, one playback
// sink, and the voice-mod configuration in effect for this run.
func NewAdapter(synth Synthesizer, player Player, voice config.VoiceModConfig) *Adapter {
	return &Adapter{synth: synth, player: player, voice: voice}
}

// Enqueue speaks text chunk by chunk, serially, reporting progress as
// cumulative character position across the whole text (spec §4.5). It
// returns when the text has finished playing, been cleared via Clear, or
// ctx was cancelled.
func (a *Adapter) Enqueue(ctx context.Context, text string) error {
	chunks := SplitChunks(text)
	if len(chunks) == 0 {
		return nil
	}
	offsets := cumulativeOffsets(chunks)
	total := 0
	for _, c := range chunks {
		total += len([]rune(c))
	}

	clear := make(chan struct{})
	a.mu.Lock()
	a.clearCh = clear
	a.mu.Unlock()

	a.fire(a.OnStarted)

	effective := Resolve(a.voice)

	for i, chunk := range chunks {
		select {
		case <-clear:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if a.OnChunk != nil {
			a.OnChunk(chunk)
		}

		pcm, err := a.synth.Synthesize(ctx, chunk)
		if err != nil {
			if a.OnError != nil {
				a.OnError(err)
			}
			return err
		}
		pcm = Chain(pcm, effective)

		if err := a.playChunkWithProgress(ctx, clear, pcm, offsets[i], len([]rune(chunk)), total); err != nil {
			if ctx.Err() == nil && a.OnError != nil {
				a.OnError(err)
			}
			return err
		}
	}

	a.fire(a.OnFinished)
	return nil
}

// Clear drops any pending chunks and stops the chunk currently playing at
// its next safe boundary (spec §4.5).
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clearCh != nil {
		select {
		case <-a.clearCh:
		default:
			close(a.clearCh)
		}
	}
}

func (a *Adapter) fire(fn func()) {
	if fn != nil {
		fn()
	}
}

// playChunkWithProgress plays one chunk's PCM while posting progress
// events at progressHz, applying the fast-finish rule at 75% of the
// chunk's estimated duration (spec §4.5).
func (a *Adapter) playChunkWithProgress(ctx context.Context, clear chan struct{}, pcm []float64, chunkOffset, chunkLen, total int) error {
	duration := time.Duration(float64(len(pcm)) / float64(sampleRate) * float64(time.Second))
	if duration <= 0 {
		return nil
	}

	playDone := make(chan error, 1)
	playCtx, cancelPlay := context.WithCancel(ctx)
	defer cancelPlay()

	go func() {
		playDone <- a.player.Play(playCtx, pcm, sampleRate)
	}()

	ticker := time.NewTicker(time.Second / progressHz)
	defer ticker.Stop()
	start := time.Now()
	fastFinished := false

	for {
		select {
		case err := <-playDone:
			a.reportProgress(chunkOffset+chunkLen, total)
			return err
		case <-clear:
			cancelPlay()
			<-playDone
			return nil
		case <-ctx.Done():
			cancelPlay()
			<-playDone
			return ctx.Err()
		case <-ticker.C:
			elapsed := time.Since(start)
			if !fastFinished && elapsed >= time.Duration(fastFinishRatio*float64(duration)) {
				fastFinished = true
				a.reportProgress(chunkOffset+chunkLen, total)
				continue
			}
			if fastFinished {
				continue
			}
			frac := float64(elapsed) / float64(duration)
			pos := chunkOffset + int(frac*float64(chunkLen))
			a.reportProgress(pos, total)
		}
	}
}

func (a *Adapter) reportProgress(pos, total int) {
	if a.OnProgress != nil {
		a.OnProgress(pos, total)
	}
}
