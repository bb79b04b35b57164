package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/z-journal/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-journal/backend/internal/model/speech"
	"github.com/zhouzirui/z-journal/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: asr 或 tts")
	provider := flag.String("provider", "", "语音服务: openai 或 volcengine，默认使用配置")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径 (.wav 或 16-bit 单声道 .pcm)")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出 WAV 文件路径 (默认自动生成)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal("请通过 -mode=asr 或 -mode=tts 指定测试模式")
	}

	format := speechmodel.PCM16Mono(cfg.Speech.SampleRate)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		name := *provider
		if name == "" {
			name = cfg.Speech.TranscriptionProvider
		}
		transcriber, err := newTranscriber(cfg, name, format)
		if err != nil {
			log.Fatalf("初始化识别服务失败: %v", err)
		}
		runASR(ctx, transcriber, name, *audioPath, format)
	case "tts":
		name := *provider
		if name == "" {
			name = cfg.Speech.SynthesisProvider
		}
		synthesizer, err := newSynthesizer(cfg, name, format)
		if err != nil {
			log.Fatalf("初始化合成服务失败: %v", err)
		}
		runTTS(ctx, synthesizer, name, *text, *outputPath, format)
	}
}

func openaiClient(cfg *config.Config) (*openai.Client, error) {
	if !cfg.OpenAI.Enabled() {
		return nil, fmt.Errorf("OPENAI_API_KEY 未配置")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

func volcengineClient(cfg *config.Config, format speechmodel.Format) (*speech.VolcengineClient, error) {
	return speech.NewVolcengineClient(speech.VolcengineOptions{
		AppID:       cfg.Speech.AppID,
		AccessToken: cfg.Speech.AccessToken,
		Language:    cfg.Speech.ASRLanguage,
		Voice:       cfg.Speech.TTSVoice,
		Speed:       cfg.Speech.TTSSpeed,
		Volume:      cfg.Speech.TTSVolume,
		Format:      format,
		Timeout:     time.Duration(cfg.Speech.Timeout) * time.Second,
	})
}

func newTranscriber(cfg *config.Config, name string, format speechmodel.Format) (speech.Transcriber, error) {
	switch name {
	case "volcengine":
		return volcengineClient(cfg, format)
	case "openai":
		client, err := openaiClient(cfg)
		if err != nil {
			return nil, err
		}
		return speech.NewOpenAITranscriber(client, cfg.OpenAI.TranscriptionModel, cfg.Speech.ASRLanguage), nil
	default:
		return nil, fmt.Errorf("未知的语音服务 %q", name)
	}
}

func newSynthesizer(cfg *config.Config, name string, format speechmodel.Format) (speech.Synthesizer, error) {
	switch name {
	case "volcengine":
		return volcengineClient(cfg, format)
	case "openai":
		client, err := openaiClient(cfg)
		if err != nil {
			return nil, err
		}
		return speech.NewOpenAISynthesizer(client, cfg.OpenAI.TTSModel, cfg.OpenAI.Voice), nil
	default:
		return nil, fmt.Errorf("未知的语音服务 %q", name)
	}
}

func runASR(ctx context.Context, transcriber speech.Transcriber, provider, audioPath string, format speechmodel.Format) {
	if audioPath == "" {
		log.Fatal("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}

	if strings.EqualFold(filepath.Ext(audioPath), ".pcm") {
		data = speech.WrapWAV(data, format)
	} else if parsed, pcm, err := speech.ParseWAV(data); err != nil {
		log.Fatalf("音频文件不是有效的 WAV: %v", err)
	} else {
		log.Printf("输入音频: %dHz %d声道 %dbit, 时长=%s", parsed.SampleRate, parsed.Channels, parsed.BitsPerSample, parsed.Duration(len(pcm)))
	}

	log.Printf("开始进行 ASR 测试: provider=%s bytes=%d", provider, len(data))

	start := time.Now()
	text, err := transcriber.Transcribe(ctx, data)
	if err != nil {
		log.Fatalf("ASR 调用失败: %v", err)
	}

	log.Printf("ASR 识别成功: text=%q 耗时=%s", text, time.Since(start).Round(time.Millisecond))
}

func runTTS(ctx context.Context, synthesizer speech.Synthesizer, provider, text, outputPath string, format speechmodel.Format) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.wav", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: provider=%s", provider)

	start := time.Now()
	pcm, err := synthesizer.Synthesize(ctx, text)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(outputPath, speech.WrapWAV(pcm, format), 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 音频时长=%s 耗时=%s", outputPath, format.Duration(len(pcm)), time.Since(start).Round(time.Millisecond))
}
