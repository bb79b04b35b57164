package speech

import (
	"context"
	"errors"
)

var (
	// ErrEmptyAudio 没有可识别的音频。
	ErrEmptyAudio = errors.New("speech: empty audio")
	// ErrEmptyText 没有可合成的文本。
	ErrEmptyText = errors.New("speech: empty text")
	// ErrNotConfigured 语音服务缺少凭证。
	ErrNotConfigured = errors.New("speech: provider not configured")
)

// Transcriber 将一段完整的 WAV 音频转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Synthesizer 将文本合成为 16 位单声道 PCM 音频。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
