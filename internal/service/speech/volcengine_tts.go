package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	ttsResourceDefault = "volc.service_type.10029"
	ttsResourceMega    = "volc.megatts.default"
	ttsResourceSeed    = "seed-tts-2.0"

	defaultVolcengineVoice = "en_female_amy_jupiter_bigtts"
)

var errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format      string  `json:"format"`
	SampleRate  int     `json:"sample_rate"`
	SpeedRatio  float32 `json:"speed_ratio,omitempty"`
	VolumeRatio float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// Synthesize 实现 Synthesizer，输出与客户端一致采样率的 PCM。
// 资源 ID 与音色不匹配时依次尝试候选资源。
func (c *VolcengineClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	speaker := strings.TrimSpace(c.opts.Voice)
	if speaker == "" {
		speaker = defaultVolcengineVoice
	}

	var lastErr error
	for i, resourceID := range ttsResourceCandidates(speaker) {
		audio, err := c.synthesizeWithResource(ctx, text, speaker, resourceID)
		if err == nil {
			if i > 0 {
				log.Printf("[speech] voice %s succeeded with fallback resource %s", speaker, resourceID)
			}
			return audio, nil
		}
		if !isResourceMismatch(err) {
			return nil, err
		}
		log.Printf("[speech] voice %s resource %s mismatch: %v", speaker, resourceID, err)
		lastErr = err
	}
	return nil, lastErr
}

func (c *VolcengineClient) synthesizeWithResource(ctx context.Context, text, speaker, resourceID string) ([]byte, error) {
	connectID := uuid.NewString()
	conn, err := c.dial(ctx, c.opts.TTSURL, resourceID, connectID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()
	stop := closeOnDone(ctx, conn)
	defer stop()

	req := &ttsRequest{}
	req.User.UID = connectID
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.Language = c.opts.Language
	req.ReqParams.AudioParams = ttsAudioParams{Format: "pcm", SampleRate: c.opts.Format.SampleRate}
	if c.opts.Speed > 0 && c.opts.Speed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = c.opts.Speed
	}
	if c.opts.Volume > 0 && c.opts.Volume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = c.opts.Volume
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, jsonRequestFrame(payload, compressionNone).marshal()); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var audio bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}
		f, err := parseFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		switch f.Type {
		case frameError:
			body, _ := f.body()
			if strings.Contains(string(body), errResourceMismatch.Error()) {
				return nil, fmt.Errorf("TTS error: %s: %w", string(body), errResourceMismatch)
			}
			return nil, fmt.Errorf("TTS error %d: %s", f.ErrorCode, string(body))

		case frameAudioOnlyResponse:
			chunk, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress audio chunk: %w", err)
			}
			audio.Write(chunk)

		case frameFullServerResponse:
			body, err := f.body()
			if err != nil {
				return nil, fmt.Errorf("failed to decompress TTS response payload: %w", err)
			}
			var msg ttsServerMessage
			if len(body) > 0 {
				if err := json.Unmarshal(body, &msg); err != nil {
					log.Printf("[speech] failed to unmarshal TTS payload: %v", err)
				} else {
					if msg.Code != 0 && msg.Code != 3000 {
						return nil, fmt.Errorf("TTS API error %d: %s", msg.Code, msg.Message)
					}
					if msg.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(msg.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						audio.Write(chunk)
					}
				}
			}

			finished := (f.hasEvent() && f.Event == eventSessionFinished) || f.isLast() || msg.Sequence < 0
			if finished {
				if audio.Len() == 0 {
					return nil, errors.New("TTS audio is empty")
				}
				return audio.Bytes(), nil
			}
		}
	}
}

func ttsResourceCandidates(voice string) []string {
	voice = strings.TrimSpace(voice)
	if strings.HasPrefix(voice, "S_") {
		return []string{ttsResourceMega}
	}
	normalized := strings.ToLower(voice)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{ttsResourceSeed, ttsResourceDefault}
		}
	}
	return []string{ttsResourceDefault, ttsResourceSeed}
}

func isResourceMismatch(err error) bool {
	return err != nil && (errors.Is(err, errResourceMismatch) || strings.Contains(err.Error(), errResourceMismatch.Error()))
}
