// Package audio implements the TTS-DSP adapter (spec §4.5): it chunks
// text, drives an external synthesizer, applies a voice-effects chain to
// the resulting PCM, and reports monotonic playback progress back to the
// caption engine.
package audio

import "strings"

// minChunkRunes below this length are dropped after splitting (spec §4.5).
const minChunkRunes = 3

// SplitChunks splits text at sentence terminators ('.'), keeping the
// terminator on its chunk, and drops empty or sub-minimum chunks. Earlier
// word/comma-level splitting is deliberately not reproduced (spec §4.5).
func SplitChunks(text string) []string {
	var chunks []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		if len([]rune(s)) >= minChunkRunes {
			chunks = append(chunks, s)
		}
	}

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' {
			flush()
		}
	}
	flush()
	return chunks
}

// cumulativeOffsets returns, for each chunk, the character offset at which
// it begins within the concatenation of all chunks (spec §4.5's "chunk k
// starts at the cumulative char offset of chunks [0..k)").
func cumulativeOffsets(chunks []string) []int {
	offsets := make([]int, len(chunks))
	total := 0
	for i, c := range chunks {
		offsets[i] = total
		total += len([]rune(c))
	}
	return offsets
}
