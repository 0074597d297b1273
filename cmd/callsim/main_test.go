package main

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearToMuLaw(t *testing.T) {
	tests := []struct {
		in   int16
		want byte
	}{
		{0, 0xFF},
		{32767, 0x80},
		{-32768, 0x00},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, linearToMuLaw(tt.in), "sample %d", tt.in)
	}
}

func writeWAV(t *testing.T, format, bits uint16, rate uint32, data []byte) string {
	t.Helper()
	h := make([]byte, wavHeaderSize)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+len(data)))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], format)
	binary.LittleEndian.PutUint16(h[22:], 1)
	binary.LittleEndian.PutUint32(h[24:], rate)
	binary.LittleEndian.PutUint16(h[34:], bits)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(len(data)))

	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, append(h, data...), 0o600))
	return path
}

func TestLoadMuLaw_ConvertsPCM(t *testing.T) {
	path := writeWAV(t, wavFormatPCM, 16, 8000, make([]byte, 2*frameSize))

	out, err := loadMuLaw(path)
	require.NoError(t, err)
	assert.Len(t, out, frameSize)
	assert.Equal(t, byte(0xFF), out[0])
}

func TestLoadMuLaw_PassesMuLawThrough(t *testing.T) {
	data := silence(frameSize)
	data[3] = 0x12
	path := writeWAV(t, wavFormatMuLaw, 8, 8000, data)

	out, err := loadMuLaw(path)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestLoadMuLaw_Rejects(t *testing.T) {
	_, err := loadMuLaw(writeWAV(t, wavFormatPCM, 16, 16000, make([]byte, 2*frameSize)))
	assert.Error(t, err)

	_, err = loadMuLaw(writeWAV(t, wavFormatMuLaw, 8, 8000, make([]byte, 10)))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(bad, make([]byte, wavHeaderSize), 0o600))
	_, err = loadMuLaw(bad)
	assert.Error(t, err)
}
