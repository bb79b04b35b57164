package speech

import (
	"encoding/binary"
	"errors"

	model "github.com/zhouzirui/z-journal/backend/internal/model/speech"
)

// WAVHeaderSize 标准 PCM WAV 头长度。
const WAVHeaderSize = 44

// ErrInvalidWAV 不是可解析的 PCM WAV 数据。
var ErrInvalidWAV = errors.New("speech: invalid wav container")

// WrapWAV 为原始 PCM 帧加上 RIFF/WAVE 头（采样率、声道数、位深、数据长度）。
func WrapWAV(pcm []byte, format model.Format) []byte {
	out := make([]byte, WAVHeaderSize+len(pcm))
	blockAlign := format.Channels * format.BitsPerSample / 8

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(format.BytesPerSecond()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(format.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[WAVHeaderSize:], pcm)
	return out
}

// ParseWAV 读取 WrapWAV 生成的头部并返回格式与 PCM 数据。
func ParseWAV(data []byte) (model.Format, []byte, error) {
	if len(data) < WAVHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		return model.Format{}, nil, ErrInvalidWAV
	}
	format := model.Format{
		Channels:      int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(data[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(data[34:36])),
	}
	size := int(binary.LittleEndian.Uint32(data[40:44]))
	if size > len(data)-WAVHeaderSize {
		return model.Format{}, nil, ErrInvalidWAV
	}
	return format, data[WAVHeaderSize : WAVHeaderSize+size], nil
}
