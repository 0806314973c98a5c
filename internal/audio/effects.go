package audio

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/RavennaNMA/defensor/internal/config"
)

// sampleRate matches the upstream synthesizer's PCM output (spec §4.5).
const sampleRate = 24000

// Chain applies the ten-stage voice-effects chain in order (spec §4.5).
// original is preserved unmodified so the effect-mix stage can blend
// against it.
func Chain(pcm []float64, cfg config.VoiceModConfig) []float64 {
	original := append([]float64(nil), pcm...)
	processed := append([]float64(nil), pcm...)

	if math.Abs(cfg.PitchShift) > 0.1 {
		processed = pitchShift(processed, cfg.PitchShift)
	}
	if math.Abs(cfg.FormantShift) > 0.1 {
		processed = formantShift(processed, cfg.FormantShift)
	}
	if cfg.ReverbAmount > 0 {
		processed = reverb(processed, cfg.ReverbAmount)
	}
	if cfg.EchoDelay > 0 {
		processed = echo(processed, cfg.EchoDelay)
	}
	if cfg.Distortion > 0 {
		processed = softSaturate(processed, cfg.Distortion)
	}
	if cfg.EQBass != 0 || cfg.EQMid != 0 || cfg.EQTreble != 0 {
		processed = threeBandEQ(processed, cfg.EQBass, cfg.EQMid, cfg.EQTreble)
	}
	if cfg.Compression > 0 {
		processed = compress(processed, cfg.Compression)
	}

	blend := cfg.EffectBlend
	if blend <= 0 {
		blend = 1
	}
	out := mix(original, processed, blend)
	out = outputGain(out, cfg.OutputVolume)
	return softClip(out)
}

// pitchShift implements spec §4.5 step 1 as a frame-wise time stretch
// followed by a linear resample back to the original length. The stretch
// takes 1024-sample frames at a 256-sample hop and keeps the first
// hop/factor samples of each; its FFT/IFFT round trip applies no phase
// correction, so this is not a phase vocoder.
func pitchShift(pcm []float64, semitones float64) []float64 {
	factor := math.Pow(2, semitones/12.0)
	stretched := stftTimeStretch(pcm, 1/factor)
	return resampleLinear(stretched, len(pcm))
}

func stftTimeStretch(pcm []float64, rate float64) []float64 {
	const frameSize = 1024
	const hop = 256

	n := len(pcm)
	if n < frameSize {
		return append([]float64(nil), pcm...)
	}
	outHop := int(float64(hop) * rate)
	if outHop < 1 {
		outHop = 1
	}

	var out []float64
	for start := 0; start+frameSize <= n; start += hop {
		frame := make([]complex128, frameSize)
		for i := 0; i < frameSize; i++ {
			frame[i] = complex(pcm[start+i], 0)
		}
		spec := fft.FFT(frame)
		recon := fft.IFFT(spec)
		// Re-synthesize at outHop instead of hop: this is what stretches
		// (or compresses) the signal in time without touching pitch.
		take := outHop
		if take > frameSize {
			take = frameSize
		}
		for i := 0; i < take; i++ {
			out = append(out, real(recon[i]))
		}
	}
	if len(out) == 0 {
		return append([]float64(nil), pcm...)
	}
	return out
}

func resampleLinear(pcm []float64, targetLen int) []float64 {
	if len(pcm) == 0 || targetLen <= 0 {
		return make([]float64, targetLen)
	}
	out := make([]float64, targetLen)
	scale := float64(len(pcm)-1) / float64(max1(targetLen-1))
	for i := range out {
		pos := float64(i) * scale
		lo := int(pos)
		if lo >= len(pcm)-1 {
			out[i] = pcm[len(pcm)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = pcm[lo]*(1-frac) + pcm[lo+1]*frac
	}
	return out
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// formantShift implements spec §4.5 step 2: a spectral-bin re-mapping of
// an STFT magnitude with phase preserved, applied to consecutive
// non-overlapping 1024-sample frames. A trailing partial frame is passed
// through unchanged.
func formantShift(pcm []float64, shift float64) []float64 {
	const frameSize = 1024
	if len(pcm) < frameSize {
		return pcm
	}
	factor := math.Pow(2, shift/12.0)

	out := append([]float64(nil), pcm...)
	for start := 0; start+frameSize <= len(pcm); start += frameSize {
		frame := make([]complex128, frameSize)
		for i := range frame {
			frame[i] = complex(pcm[start+i], 0)
		}
		spec := fft.FFT(frame)
		shifted := make([]complex128, len(spec))
		for i := range shifted {
			srcIdx := int(float64(i) / factor)
			if srcIdx >= 0 && srcIdx < len(spec) {
				mag := cmplx.Abs(spec[srcIdx])
				phase := cmplx.Phase(spec[i])
				shifted[i] = cmplx.Rect(mag, phase)
			}
		}
		recon := fft.IFFT(shifted)
		for i := 0; i < frameSize; i++ {
			out[start+i] = real(recon[i])
		}
	}
	return out
}

// reverb implements spec §4.5 step 3: four parallel delay taps at 30, 70,
// 110, 150 ms, each attenuated by 0.6*amount*0.7^k.
func reverb(pcm []float64, amount float64) []float64 {
	delaysMs := []float64{30, 70, 110, 150}
	out := append([]float64(nil), pcm...)
	for k, ms := range delaysMs {
		delaySamples := int(ms / 1000 * sampleRate)
		gain := 0.6 * amount * math.Pow(0.7, float64(k))
		for i := delaySamples; i < len(out); i++ {
			out[i] += pcm[i-delaySamples] * gain
		}
	}
	return out
}

// echo implements spec §4.5 step 4: one tap at 0.2*delay*200ms, gain
// 0.5*delay.
func echo(pcm []float64, delay float64) []float64 {
	delayMs := 0.2 * delay * 200
	delaySamples := int(delayMs / 1000 * sampleRate)
	gain := 0.5 * delay
	out := append([]float64(nil), pcm...)
	for i := delaySamples; i < len(out); i++ {
		out[i] += pcm[i-delaySamples] * gain
	}
	return out
}

// softSaturate implements spec §4.5 step 5: y = tanh(d*x)/d, d=1+10*amount,
// mixed back by amount.
func softSaturate(pcm []float64, amount float64) []float64 {
	d := 1 + 10*amount
	out := make([]float64, len(pcm))
	for i, x := range pcm {
		y := math.Tanh(d*x) / d
		out[i] = x*(1-amount) + y*amount
	}
	return out
}

// threeBandEQ implements spec §4.5 step 6: three band-passes (80-250Hz,
// 250-4000Hz, 4kHz high-pass) summed weighted by bass/mid/treble, via an
// FFT magnitude mask (a frequency-domain approximation of the Butterworth
// bands spec.md names).
func threeBandEQ(pcm []float64, bass, mid, treble float64) []float64 {
	n := len(pcm)
	if n == 0 {
		return pcm
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, pcm)

	binHz := float64(sampleRate) / float64(n)
	for i, c := range coeffs {
		freq := float64(i) * binHz
		var weight float64
		switch {
		case freq >= 80 && freq < 250:
			weight = bass
		case freq >= 250 && freq < 4000:
			weight = mid
		case freq >= 4000:
			weight = treble
		}
		coeffs[i] = c * complex(1+weight, 0)
	}
	return fft.Sequence(nil, coeffs)[:n]
}

// compress implements spec §4.5 step 7: soft-knee compression with
// threshold=0.5*(1-a), ratio=2+8a, makeup gain=1+0.5a.
func compress(pcm []float64, amount float64) []float64 {
	threshold := 0.5 * (1 - amount)
	ratio := 2 + 8*amount
	makeup := 1 + 0.5*amount

	out := make([]float64, len(pcm))
	for i, x := range pcm {
		abs := math.Abs(x)
		if abs <= threshold {
			out[i] = x * makeup
			continue
		}
		over := abs - threshold
		compressed := threshold + over/ratio
		sign := 1.0
		if x < 0 {
			sign = -1.0
		}
		out[i] = sign * compressed * makeup
	}
	return out
}

// mix implements spec §4.5 step 8: out = original*(1-blend) + processed*blend.
func mix(original, processed []float64, blend float64) []float64 {
	n := len(original)
	if len(processed) < n {
		n = len(processed)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = original[i]*(1-blend) + processed[i]*blend
	}
	return out
}

// outputGain implements spec §4.5 step 9: 10^(dB/20).
func outputGain(pcm []float64, db float64) []float64 {
	g := math.Pow(10, db/20)
	out := make([]float64, len(pcm))
	for i, x := range pcm {
		out[i] = x * g
	}
	return out
}

// softClip implements spec §4.5 step 10: tanh(0.9*x)*0.95.
func softClip(pcm []float64) []float64 {
	out := make([]float64, len(pcm))
	for i, x := range pcm {
		out[i] = math.Tanh(0.9*x) * 0.95
	}
	return out
}
