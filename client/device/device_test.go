package client_device

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliconvo/pkg/commons"
)

var mono16k = Format{SampleRate: 16000, Channels: 1}

func newTestRegistry() *Registry {
	r := NewRegistry(commons.NewNopLogger())
	r.Add(DeviceInfo{DeviceID: "mic-1", Label: "Built-in", Kind: KindInput}, Tone(mono16k, 440, 0.5))
	r.Add(DeviceInfo{DeviceID: "mic-2", Label: "USB", Kind: KindInput}, Silence(mono16k))
	r.Add(DeviceInfo{DeviceID: "spk-1", Label: "Speakers", Kind: KindOutput}, nil)
	r.Add(DeviceInfo{DeviceID: "cam-1", Label: "Camera", Kind: KindVideo}, nil)
	return r
}

func wavBytes(pcm []byte, f Format) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(f.BytesPerSecond()))
	binary.Write(&buf, binary.LittleEndian, uint16(f.FrameSize()))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_EnumerateFiltersAudioKinds(t *testing.T) {
	devices, err := newTestRegistry().Enumerate(context.Background())
	require.NoError(t, err)
	ids := []string{}
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
	}
	assert.Equal(t, []string{"mic-1", "mic-2", "spk-1"}, ids)
}

func TestRegistry_Acquire(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		denied   bool
		want     string
		wantErr  error
	}{
		{"default is first input", "", false, "mic-1", nil},
		{"exact match", "mic-2", false, "mic-2", nil},
		{"output is not acquirable", "spk-1", false, "", ErrNoSuchDevice},
		{"unknown", "nope", false, "", ErrNoSuchDevice},
		{"permission denied", "", true, "", ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			r.Deny(tt.denied)
			s, err := r.Acquire(context.Background(), tt.deviceID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, r.OpenStreams())
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tt.want, s.DeviceID())
			assert.Equal(t, 1, r.OpenStreams())
		})
	}
}

func TestStream_CloseReleasesOnce(t *testing.T) {
	r := newTestRegistry()
	s, err := r.Acquire(context.Background(), "mic-1")
	require.NoError(t, err)

	buf := make([]byte, 320)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 320, n)
	assert.NotEqual(t, make([]byte, 320), buf, "tone must not be silent")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Zero(t, r.OpenStreams())

	_, err = s.Read(buf)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

// =============================================================================
// WAV
// =============================================================================

func TestParseWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	got, format, err := ParseWAV(wavBytes(pcm, mono16k))
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
	assert.Equal(t, mono16k, format)

	_, _, err = ParseWAV([]byte("not a wav file at all"))
	assert.Error(t, err)
}

func TestWAVFile_PlaysThenSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	require.NoError(t, os.WriteFile(path, wavBytes([]byte{9, 9, 9, 9}, mono16k), 0o600))

	r := NewRegistry(commons.NewNopLogger())
	r.Add(DeviceInfo{DeviceID: "file", Kind: KindInput}, WAVFile(path))
	s, err := r.Acquire(context.Background(), "")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, mono16k, s.Format())

	buf := make([]byte, 8)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte{9, 9, 9, 9, 0, 0, 0, 0}, buf)
}
