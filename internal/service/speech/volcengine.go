package speech

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	model "github.com/zhouzirui/z-journal/backend/internal/model/speech"
)

const (
	defaultASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	defaultTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"
)

// VolcengineOptions 火山引擎语音配置。
type VolcengineOptions struct {
	AppID          string
	AccessToken    string
	ConcurrentMode bool // ASR 并发版（默认小时版）
	Language       string
	Voice          string
	Speed          float32
	Volume         float32
	Format         model.Format
	Timeout        time.Duration

	// ChunkInterval 音频分包之间的发送间隔，0 表示不限速。
	ChunkInterval time.Duration

	ASRURL string
	TTSURL string
}

// VolcengineClient 通过火山引擎二进制 WebSocket 协议完成识别与合成。
type VolcengineClient struct {
	opts   VolcengineOptions
	dialer *websocket.Dialer
}

// NewVolcengineClient 创建客户端，凭证缺失时返回 ErrNotConfigured。
func NewVolcengineClient(opts VolcengineOptions) (*VolcengineClient, error) {
	opts.AppID = strings.TrimSpace(opts.AppID)
	opts.AccessToken = strings.TrimSpace(opts.AccessToken)
	if opts.AppID == "" || opts.AccessToken == "" {
		return nil, fmt.Errorf("火山引擎语音配置缺少 AppID 或 AccessToken: %w", ErrNotConfigured)
	}
	if opts.ASRURL == "" {
		opts.ASRURL = defaultASRURL
	}
	if opts.TTSURL == "" {
		opts.TTSURL = defaultTTSURL
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.Format.SampleRate == 0 {
		opts.Format = model.PCM16Mono(24000)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &VolcengineClient{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.Timeout},
	}, nil
}

func (c *VolcengineClient) dial(ctx context.Context, url, resourceID, connectID string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.opts.AppID)
	header.Set("X-Api-Access-Key", c.opts.AccessToken)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Printf("[speech] volcengine connected resource=%s logid=%s", resourceID, logid)
		}
	}
	return conn, nil
}

// closeOnDone 在 ctx 结束时关闭连接以打断阻塞读取。
func closeOnDone(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
