// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package client_device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	wavPCMFormat     = 1
	wavBitsPerSample = 16
)

// ParseWAV extracts linear16 PCM and its format from a RIFF/WAVE blob.
// Chunks other than fmt and data are skipped.
func ParseWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("not a RIFF/WAVE file")
	}
	var format Format
	var haveFormat bool
	r := bytes.NewReader(data[12:])
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(r, id[:]); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, Format{}, fmt.Errorf("truncated chunk header: %w", err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, Format{}, fmt.Errorf("truncated %q chunk: %w", string(id[:]), err)
		}
		if size%2 == 1 {
			r.ReadByte()
		}
		switch string(id[:]) {
		case "fmt ":
			if len(body) < 16 {
				return nil, Format{}, fmt.Errorf("short fmt chunk")
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if tag != wavPCMFormat || bits != wavBitsPerSample {
				return nil, Format{}, fmt.Errorf("unsupported wav encoding tag=%d bits=%d", tag, bits)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			}
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, Format{}, fmt.Errorf("data chunk before fmt chunk")
			}
			return body, format, nil
		}
	}
	return nil, Format{}, fmt.Errorf("no data chunk")
}

// pcmSource plays a buffer once and then yields silence, the way a
// microphone keeps delivering after the speaker stops.
type pcmSource struct {
	pcm []byte
	pos int
}

func (s *pcmSource) Read(p []byte) (int, error) {
	n := copy(p, s.pcm[s.pos:])
	s.pos += n
	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}

// WAVFile returns a factory reading path on every acquisition.
func WAVFile(path string) SourceFactory {
	return func() (io.Reader, Format, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, Format{}, err
		}
		pcm, format, err := ParseWAV(data)
		if err != nil {
			return nil, Format{}, fmt.Errorf("%s: %w", path, err)
		}
		return &pcmSource{pcm: pcm}, format, nil
	}
}

// PCM returns a factory over an in-memory buffer.
func PCM(pcm []byte, format Format) SourceFactory {
	return func() (io.Reader, Format, error) {
		return &pcmSource{pcm: pcm}, format, nil
	}
}
