// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_device

import (
	"encoding/binary"
	"io"
	"math"
)

// toneSource synthesizes a sine wave, mono or duplicated across channels.
type toneSource struct {
	format    Format
	frequency float64
	amplitude float64
	sample    uint64
}

// Tone returns a factory for a synthetic input. amplitude is in (0, 1].
func Tone(format Format, frequency, amplitude float64) SourceFactory {
	return func() (io.Reader, Format, error) {
		return &toneSource{format: format, frequency: frequency, amplitude: amplitude}, format, nil
	}
}

func (t *toneSource) Read(p []byte) (int, error) {
	frame := t.format.FrameSize()
	n := (len(p) / frame) * frame
	for off := 0; off < n; off += frame {
		v := t.amplitude * math.Sin(2*math.Pi*t.frequency*float64(t.sample)/float64(t.format.SampleRate))
		s := int16(v * math.MaxInt16)
		for ch := 0; ch < t.format.Channels; ch++ {
			binary.LittleEndian.PutUint16(p[off+ch*BytesPerSample:], uint16(s))
		}
		t.sample++
	}
	return n, nil
}

// Silence is an input that produces zero samples.
func Silence(format Format) SourceFactory {
	return Tone(format, 0, 0)
}
