// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_capture

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/zaf/g711"

	client_device "github.com/intelliconvo/client/device"
)

type Encoding string

const (
	EncodingLinear16 Encoding = "linear16"
	EncodingMulaw    Encoding = "mulaw"
)

const (
	AudioPCMFormat   = 1 // WAV PCM format tag
	AudioMulawFormat = 7 // WAV G.711 µ-law format tag
	wavHeaderSize    = 44
)

// createWAVFile wraps linear16 pcm in a RIFF header, transcoding to µ-law
// first when asked.
func createWAVFile(pcmData []byte, format client_device.Format, encoding Encoding) ([]byte, error) {
	formatTag := uint16(AudioPCMFormat)
	bytesPerSample := client_device.BytesPerSample
	payload := pcmData
	switch encoding {
	case EncodingLinear16, "":
	case EncodingMulaw:
		formatTag = AudioMulawFormat
		bytesPerSample = 1
		payload = g711.EncodeUlaw(pcmData)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(payload))
	channels := format.Channels
	bps := format.SampleRate * channels * bytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(payload)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, formatTag)
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(bytesPerSample*8))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)

	return buf.Bytes(), nil
}
