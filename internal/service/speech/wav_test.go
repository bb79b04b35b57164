package speech

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/z-journal/backend/internal/model/speech"
)

func TestWrapWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WrapWAV(pcm, model.PCM16Mono(24000))

	require.Len(t, wav, WAVHeaderSize+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[20:22]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(wav[32:34]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[WAVHeaderSize:])
}

func TestParseWAV(t *testing.T) {
	format, pcm, err := ParseWAV(WrapWAV([]byte{9, 9}, model.PCM16Mono(16000)))
	require.NoError(t, err)
	assert.Equal(t, model.PCM16Mono(16000), format)
	assert.Equal(t, []byte{9, 9}, pcm)

	_, _, err = ParseWAV([]byte("not a wav"))
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestFormatDuration(t *testing.T) {
	f := model.PCM16Mono(24000)
	assert.Equal(t, 48000, f.BytesPerSecond())
	assert.Equal(t, "500ms", f.Duration(24000).String())
}
