package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Usage     UsageConfig
	Store     StoreConfig
	AI        AIConfig
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Speech    SpeechConfig
	Realtime  RealtimeConfig
	Journal   JournalConfig
	Policy    PolicyConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	usage, err := loadUsageConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	journal, err := loadJournalConfig()
	if err != nil {
		return nil, err
	}

	anthropic, err := loadAnthropicConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Auth:      loadAuthConfig(),
		Usage:     usage,
		Store:     loadStoreConfig(),
		AI:        ai,
		OpenAI:    loadOpenAIConfig(),
		Anthropic: anthropic,
		Speech:    speech,
		Realtime:  realtime,
		Journal:   journal,
		Policy:    PolicyConfig{File: strings.TrimSpace(os.Getenv("MODE_POLICY_FILE"))},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	var origins []string
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, CORSOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, CORSOrigins: origins}, nil
}

// AuthConfig 描述令牌校验配置。
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		Issuer:    strings.TrimSpace(os.Getenv("AUTH_JWT_ISSUER")),
		Audience:  strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
	}
}

// UsageConfig 描述每日配额、费率与会话生命周期。
type UsageConfig struct {
	RealtimeMinutesCap float64
	StandardMinutesCap float64
	DailyCostCapUSD    float64
	RealtimeRate       float64
	StandardRate       float64
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
	MaxSessionDuration time.Duration
	MaxAudioBytes      int
	Enforce            bool
}

func loadUsageConfig() (UsageConfig, error) {
	cfg := UsageConfig{
		RealtimeMinutesCap: 30,
		StandardMinutesCap: 60,
		DailyCostCapUSD:    2,
		RealtimeRate:       0.30,
		StandardRate:       0.03,
		IdleTimeout:        10 * time.Minute,
		SweepInterval:      time.Minute,
		MaxSessionDuration: 30 * time.Minute,
		MaxAudioBytes:      10 << 20,
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"USAGE_REALTIME_MINUTES_CAP", &cfg.RealtimeMinutesCap},
		{"USAGE_STANDARD_MINUTES_CAP", &cfg.StandardMinutesCap},
		{"USAGE_DAILY_COST_CAP_USD", &cfg.DailyCostCapUSD},
		{"USAGE_REALTIME_RATE_PER_MINUTE", &cfg.RealtimeRate},
		{"USAGE_STANDARD_RATE_PER_MINUTE", &cfg.StandardRate},
	}
	for _, f := range floats {
		val, err := parseOptionalFloatEnv(f.key)
		if err != nil {
			return UsageConfig{}, err
		}
		if val != nil {
			if *val < 0 {
				return UsageConfig{}, fmt.Errorf("invalid %s value: must not be negative", f.key)
			}
			*f.dst = *val
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SESSION_IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"SESSION_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"SESSION_MAX_DURATION", &cfg.MaxSessionDuration},
	}
	for _, d := range durations {
		val, err := parseOptionalDurationEnv(d.key)
		if err != nil {
			return UsageConfig{}, err
		}
		if val != nil {
			*d.dst = *val
		}
	}

	enforce, err := parseBoolEnv("USAGE_ENFORCE", true)
	if err != nil {
		return UsageConfig{}, err
	}
	cfg.Enforce = enforce

	maxAudio, err := parseOptionalIntEnv("SESSION_MAX_AUDIO_BYTES")
	if err != nil {
		return UsageConfig{}, err
	}
	if maxAudio != nil {
		cfg.MaxAudioBytes = *maxAudio
	}

	return cfg, nil
}

// StoreConfig 选择用量账本的存储后端：memory、sqlite 或 postgres。
type StoreConfig struct {
	Driver string
	DSN    string
}

func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("USAGE_STORE", "sqlite")),
		DSN:    getEnvOrDefault("USAGE_STORE_DSN", "voice_usage.db"),
	}
}

// AIConfig 描述大模型相关配置。Provider 取 ark、openai 或 anthropic。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	provider := strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", "openai"))
	switch provider {
	case "ark", "openai", "anthropic":
	default:
		return AIConfig{}, fmt.Errorf("invalid COMPLETION_PROVIDER value %q", provider)
	}

	return AIConfig{
		Provider:    provider,
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// OpenAIConfig 描述 OpenAI 的对话、转写、合成与实时模型。
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	ChatModel          string
	TranscriptionModel string
	TTSModel           string
	Voice              string
	RealtimeURL        string
	RealtimeModel      string
}

// Enabled 表示是否配置了 API Key。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:             strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:            strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		ChatModel:          getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		TranscriptionModel: getEnvOrDefault("OPENAI_TRANSCRIPTION_MODEL", "whisper-1"),
		TTSModel:           getEnvOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		Voice:              getEnvOrDefault("OPENAI_VOICE", "alloy"),
		RealtimeURL:        getEnvOrDefault("OPENAI_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:      getEnvOrDefault("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview"),
	}
}

// AnthropicConfig 描述 Anthropic 对话模型。
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

func loadAnthropicConfig() (AnthropicConfig, error) {
	maxTokens := 1024
	override, err := parseOptionalIntEnv("ANTHROPIC_MAX_TOKENS")
	if err != nil {
		return AnthropicConfig{}, err
	}
	if override != nil && *override > 0 {
		maxTokens = *override
	}
	return AnthropicConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		Model:     getEnvOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		MaxTokens: maxTokens,
	}, nil
}

// SpeechConfig 描述语音服务相关配置。
// TranscriptionProvider / SynthesisProvider 取 openai 或 volcengine。
type SpeechConfig struct {
	TranscriptionProvider string
	SynthesisProvider     string
	SampleRate            int
	AppID                 string
	AccessToken           string
	ASRLanguage           string
	TTSVoice              string
	TTSSpeed              float32
	TTSVolume             float32
	Timeout               int
}

// VolcengineEnabled 表示火山引擎语音凭证是否齐全。
func (c SpeechConfig) VolcengineEnabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

func loadSpeechConfig() (SpeechConfig, error) {
	// 解析超时设置
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	// 解析TTS速度和音量
	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	sampleRate := 24000
	if rate, err := parseOptionalIntEnv("AUDIO_SAMPLE_RATE"); err != nil {
		return SpeechConfig{}, err
	} else if rate != nil {
		sampleRate = *rate
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	if accessToken == "" {
		accessToken = strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	}

	return SpeechConfig{
		TranscriptionProvider: strings.ToLower(getEnvOrDefault("TRANSCRIPTION_PROVIDER", "openai")),
		SynthesisProvider:     strings.ToLower(getEnvOrDefault("SYNTHESIS_PROVIDER", "openai")),
		SampleRate:            sampleRate,
		AppID:                 strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:           accessToken,
		ASRLanguage:           getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:              getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:              ttsSpeed,
		TTSVolume:             ttsVolume,
		Timeout:               timeoutSeconds,
	}, nil
}

// RealtimeConfig 描述服务端语音活动检测参数。
type RealtimeConfig struct {
	VADThreshold      float64
	PrefixPaddingMS   int
	SilenceDurationMS int
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	cfg := RealtimeConfig{VADThreshold: 0.5, PrefixPaddingMS: 300, SilenceDurationMS: 700}

	threshold, err := parseOptionalFloatEnv("REALTIME_VAD_THRESHOLD")
	if err != nil {
		return RealtimeConfig{}, err
	}
	if threshold != nil {
		cfg.VADThreshold = *threshold
	}

	padding, err := parseOptionalIntEnv("REALTIME_VAD_PREFIX_PADDING_MS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	if padding != nil {
		cfg.PrefixPaddingMS = *padding
	}

	silence, err := parseOptionalIntEnv("REALTIME_VAD_SILENCE_MS")
	if err != nil {
		return RealtimeConfig{}, err
	}
	if silence != nil {
		cfg.SilenceDurationMS = *silence
	}
	return cfg, nil
}

// JournalConfig 描述日记后端地址；BaseURL 为空时使用进程内实现。
type JournalConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func loadJournalConfig() (JournalConfig, error) {
	timeout := 10 * time.Second
	override, err := parseOptionalDurationEnv("JOURNAL_API_TIMEOUT")
	if err != nil {
		return JournalConfig{}, err
	}
	if override != nil {
		timeout = *override
	}
	return JournalConfig{
		BaseURL: strings.TrimSpace(os.Getenv("JOURNAL_API_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("JOURNAL_API_KEY")),
		Timeout: timeout,
	}, nil
}

// PolicyConfig 允许用文件覆盖默认的模式路由策略。
type PolicyConfig struct {
	File string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val <= 0 {
		return nil, fmt.Errorf("invalid %s value %q: must be positive", key, value)
	}
	return &val, nil
}
