// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_analyser turns PCM blocks into byte frequency frames for
// level meters and spectrum displays.
package internal_analyser

import (
	"encoding/binary"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	FFTSize               = 256
	FrequencyBinCount     = FFTSize / 2
	MinDecibels           = -100.0
	MaxDecibels           = -30.0
	SmoothingTimeConstant = 0.8
)

// Analyser keeps the smoothed spectrum between frames, so one instance
// belongs to one stream.
type Analyser struct {
	mu       sync.Mutex
	fft      *fourier.FFT
	window   []float64
	smoothed []float64
	samples  []float64
	coeffs   []complex128
}

func New() *Analyser {
	window := make([]float64, FFTSize)
	// Blackman
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range window {
		x := 2 * math.Pi * float64(i) / float64(FFTSize)
		window[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return &Analyser{
		fft:      fourier.NewFFT(FFTSize),
		window:   window,
		smoothed: make([]float64, FrequencyBinCount),
		samples:  make([]float64, FFTSize),
		coeffs:   make([]complex128, FFTSize/2+1),
	}
}

// Frame analyses the trailing FFTSize samples of the first channel of pcm
// (little endian int16) and returns FrequencyBinCount bytes scaled from
// [MinDecibels, MaxDecibels] to [0, 255]. Short input is zero padded in
// front.
func (a *Analyser) Frame(pcm []byte, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stride := 2 * channels
	total := len(pcm) / stride
	for i := range a.samples {
		a.samples[i] = 0
	}
	start := total - FFTSize
	for i := 0; i < FFTSize; i++ {
		idx := start + i
		if idx < 0 {
			continue
		}
		v := int16(binary.LittleEndian.Uint16(pcm[idx*stride:]))
		a.samples[i] = float64(v) / 32768.0 * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.samples)

	out := make([]byte, FrequencyBinCount)
	for k := 0; k < FrequencyBinCount; k++ {
		magnitude := cmplx.Abs(a.coeffs[k]) / FFTSize
		a.smoothed[k] = SmoothingTimeConstant*a.smoothed[k] + (1-SmoothingTimeConstant)*magnitude
		out[k] = scale(a.smoothed[k])
	}
	return out
}

// Reset forgets the smoothing history.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}

func scale(magnitude float64) byte {
	if magnitude <= 0 {
		return 0
	}
	db := 20 * math.Log10(magnitude)
	v := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return byte(v)
}

// Level is the peak of a frame normalised to [0, 1].
func Level(frame []byte) float64 {
	var peak byte
	for _, b := range frame {
		if b > peak {
			peak = b
		}
	}
	return float64(peak) / 255
}
