//go:build cgo
// +build cgo

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/oto/v2"
)

// OtoPlayer drives playback through the system audio device via oto,
// converting the adapter's float64 PCM into signed 16-bit little-endian
// frames at the rate oto's context was created with.
type OtoPlayer struct {
	ctx *oto.Context
}

// NewOtoPlayer opens the default audio device at sampleRate, mono,
// 16-bit. The returned ready channel per oto's API is drained before
// returning so the player is immediately usable.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	ctx, ready, err := oto.NewContext(sampleRate, 1, 2)
	if err != nil {
		return nil, fmt.Errorf("audio: opening oto context: %w", err)
	}
	<-ready
	return &OtoPlayer{ctx: ctx}, nil
}

// Play blocks until pcm has fully drained from the device or ctx is
// cancelled, matching the adapter's "next chunk never starts until the
// previous has drained" contract (spec §4.5).
func (p *OtoPlayer) Play(ctx context.Context, pcm []float64, sampleRate int) error {
	buf := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		v := int16(sample * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	player := p.ctx.NewPlayer(newByteReader(buf))
	defer player.Close()
	player.Play()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		default:
		}
	}
	return nil
}

// byteReader adapts a fixed byte slice to io.Reader for oto's player,
// which reads PCM frames on demand rather than accepting a full buffer.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
