package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
}

// Transcribe 实现 Transcriber：发送完整请求后按 200ms 分包推送 WAV 数据，直到收到最后一包结果。
func (c *VolcengineClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) <= WAVHeaderSize {
		return "", ErrEmptyAudio
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resourceID := "volc.bigasr.sauc.duration"
	if c.opts.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	connectID := uuid.NewString()

	conn, err := c.dial(ctx, c.opts.ASRURL, resourceID, connectID)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()
	stop := closeOnDone(ctx, conn)
	defer stop()

	payload, err := json.Marshal(c.buildASRRequest(connectID))
	if err != nil {
		return "", fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return "", err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, jsonRequestFrame(compressed, compressionGzip).marshal()); err != nil {
		return "", fmt.Errorf("failed to send ASR request: %w", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.sendAudio(ctx, conn, wav)
	}()

	text, err := c.receiveTranscript(conn)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		select {
		case se := <-sendErr:
			if se != nil {
				return "", fmt.Errorf("failed to send audio data: %w", se)
			}
		default:
		}
		return "", err
	}
	return text, nil
}

func (c *VolcengineClient) buildASRRequest(uid string) *asrRequest {
	req := &asrRequest{}
	req.User.UID = uid
	req.Audio.Format = "wav"
	req.Audio.Language = c.opts.Language
	req.Audio.Codec = "raw"
	req.Audio.Rate = c.opts.Format.SampleRate
	req.Audio.Bits = c.opts.Format.BitsPerSample
	req.Audio.Channel = c.opts.Format.Channels
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

func (c *VolcengineClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	chunkSize := c.opts.Format.BytesPerSecond() / 5
	if chunkSize <= 0 {
		chunkSize = 6400
	}
	// 序号 1 被完整请求占用，音频从 2 开始
	sequence := int32(2)

	for start := 0; start < len(audio); start += chunkSize {
		end := min(start+chunkSize, len(audio))
		last := end == len(audio)

		compressed, err := gzipBytes(audio[start:end])
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, audioFrame(compressed, sequence, last).marshal()); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if last || c.opts.ChunkInterval <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ChunkInterval):
		}
	}
	return nil
}

func (c *VolcengineClient) receiveTranscript(conn *websocket.Conn) (string, error) {
	var text string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}
		f, err := parseFrame(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch f.Type {
		case frameError:
			body, _ := f.body()
			return "", fmt.Errorf("ASR error %d: %s", f.ErrorCode, string(body))

		case frameFullServerResponse:
			body, err := f.body()
			if err != nil {
				return "", fmt.Errorf("failed to decompress ASR payload: %w", err)
			}
			var msg asrServerMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				log.Printf("[speech] failed to unmarshal ASR response: %v", err)
				continue
			}
			if msg.Code != 0 && msg.Code != 20000000 {
				return "", fmt.Errorf("ASR API error %d: %s", msg.Code, msg.Message)
			}

			candidate := msg.Result.Text
			if candidate == "" && len(msg.Result.Utterances) > 0 {
				parts := make([]string, 0, len(msg.Result.Utterances))
				for _, u := range msg.Result.Utterances {
					parts = append(parts, u.Text)
				}
				candidate = strings.Join(parts, " ")
			}
			if candidate != "" {
				text = candidate
			}
			if f.isLast() || msg.Sequence < 0 {
				return strings.TrimSpace(text), nil
			}
		}
	}
}
