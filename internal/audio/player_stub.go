//go:build !cgo
// +build !cgo

package audio

import (
	"context"
	"fmt"
)

// OtoPlayer is unavailable without cgo; Play always fails so a non-cgo
// build still links, with the adapter surfacing the failure through
// OnError instead of the caption/show pipeline silently hanging.
type OtoPlayer struct{}

// NewOtoPlayer always fails without cgo.
func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return nil, fmt.Errorf("audio: built without cgo, no playback device available")
}

func (p *OtoPlayer) Play(ctx context.Context, pcm []float64, sampleRate int) error {
	return fmt.Errorf("audio: built without cgo, playback unavailable")
}
