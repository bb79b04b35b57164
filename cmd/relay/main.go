package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zhouzirui/z-journal/backend/internal/auth"
	"github.com/zhouzirui/z-journal/backend/internal/config"
	"github.com/zhouzirui/z-journal/backend/internal/handler"
	"github.com/zhouzirui/z-journal/backend/internal/handler/relay"
	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
	guidedModel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	speechModel "github.com/zhouzirui/z-journal/backend/internal/model/speech"
	usageModel "github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/repository/memory"
	"github.com/zhouzirui/z-journal/backend/internal/repository/postgres"
	"github.com/zhouzirui/z-journal/backend/internal/repository/sqlite"
	"github.com/zhouzirui/z-journal/backend/internal/service/ai"
	"github.com/zhouzirui/z-journal/backend/internal/service/journal"
	"github.com/zhouzirui/z-journal/backend/internal/service/pipeline"
	"github.com/zhouzirui/z-journal/backend/internal/service/realtime"
	"github.com/zhouzirui/z-journal/backend/internal/service/router"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
	"github.com/zhouzirui/z-journal/backend/internal/service/speech"
	"github.com/zhouzirui/z-journal/backend/internal/service/usage"
)

type closableLedger interface {
	usage.Ledger
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		log.Fatalf("failed to initialize token verifier: %v", err)
	}

	ledger, err := openLedger(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open usage ledger: %v", err)
	}
	defer ledger.Close()

	limits := usageModel.Limits{
		RealtimeMinutes: cfg.Usage.RealtimeMinutesCap,
		StandardMinutes: cfg.Usage.StandardMinutesCap,
		DailyCostUSD:    cfg.Usage.DailyCostCapUSD,
	}
	if !cfg.Usage.Enforce {
		// 零值上限表示不做准入限制，用量仍然记账。
		limits = usageModel.Limits{}
		log.Println("usage caps disabled by USAGE_ENFORCE=false")
	}
	governor := usage.NewGovernor(ledger, limits, usageModel.Rates{
		RealtimePerMinute: cfg.Usage.RealtimeRate,
		StandardPerMinute: cfg.Usage.StandardRate,
	})

	registry := session.NewRegistry(governor, session.Config{
		IdleTimeout:   cfg.Usage.IdleTimeout,
		SweepInterval: cfg.Usage.SweepInterval,
		MaxAudioBytes: cfg.Usage.MaxAudioBytes,
	})
	go registry.RunSweeper(ctx)

	definitions := guidedModel.NewMemoryStore(guidedModel.Seed())
	modeRouter, err := newModeRouter(ctx, cfg.Policy, definitions)
	if err != nil {
		log.Fatalf("failed to prepare mode policy: %v", err)
	}

	var backend journal.Backend
	if cfg.Journal.BaseURL != "" {
		backend = journal.NewClient(cfg.Journal.BaseURL, cfg.Journal.APIKey, cfg.Journal.Timeout)
		log.Printf("journal backend: %s", cfg.Journal.BaseURL)
	} else {
		backend = journal.NewMemoryBackend()
		log.Println("JOURNAL_API_URL 未配置，使用进程内日记存储")
	}
	lookup := journal.NewMemoryLookup(backend)

	var openaiClient *openai.Client
	if cfg.OpenAI.Enabled() {
		opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		client := openai.NewClient(opts...)
		openaiClient = &client
	}

	completer, err := newCompleter(ctx, cfg, openaiClient, lookup.Definition())
	if err != nil {
		log.Fatalf("failed to initialize completion provider: %v", err)
	}
	format := speechModel.PCM16Mono(cfg.Speech.SampleRate)
	transcriber, synthesizer, err := newSpeech(cfg, openaiClient, format)
	if err != nil {
		log.Fatalf("failed to initialize speech providers: %v", err)
	}
	standard := pipeline.NewStandard(transcriber, synthesizer, completer, lookup, format)

	realtimeManager := realtime.NewManager(realtime.Config{
		URL:                cfg.OpenAI.RealtimeURL,
		Model:              cfg.OpenAI.RealtimeModel,
		APIKey:             cfg.OpenAI.APIKey,
		Voice:              cfg.OpenAI.Voice,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		VADThreshold:       cfg.Realtime.VADThreshold,
		PrefixPaddingMS:    cfg.Realtime.PrefixPaddingMS,
		SilenceDurationMS:  cfg.Realtime.SilenceDurationMS,
	}, lookup)
	if !realtimeManager.Enabled() {
		log.Println("OPENAI_API_KEY 未配置，实时模式将回退到标准流水线")
	}

	relayHandler := relay.New(relay.Deps{
		Verifier:           verifier,
		Registry:           registry,
		Router:             modeRouter,
		Guided:             definitions,
		Context:            journal.NewContextLoader(backend, 5*time.Second),
		Saver:              backend,
		Pipeline:           standard,
		Realtime:           realtimeManager,
		MaxSessionDuration: cfg.Usage.MaxSessionDuration,
	})

	routes := handler.NewRouter(handler.Services{
		Verifier:    verifier,
		Usage:       governor,
		Definitions: definitions,
		Router:      modeRouter,
		Relay:       relayHandler,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	startServer(ctx, cfg.Server, routes)

	realtimeManager.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n := registry.EndAll(shutdownCtx, "shutdown"); n > 0 {
		log.Printf("ended %d live sessions on shutdown", n)
	}
}

func openLedger(ctx context.Context, cfg config.StoreConfig) (closableLedger, error) {
	switch cfg.Driver {
	case "memory":
		log.Println("usage ledger: memory")
		return memory.NewLedger(), nil
	case "sqlite":
		db, err := sqlite.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Printf("usage ledger: sqlite %s", cfg.DSN)
		return sqliteLedger{Ledger: sqlite.NewLedger(db.GetDB()), db: db}, nil
	case "postgres":
		ledger, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		log.Println("usage ledger: postgres")
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown USAGE_STORE %q", cfg.Driver)
	}
}

type sqliteLedger struct {
	*sqlite.Ledger
	db *sqlite.Database
}

func (l sqliteLedger) Close() error { return l.db.Close() }

func newModeRouter(ctx context.Context, cfg config.PolicyConfig, definitions guidedModel.Store) (*router.Router, error) {
	if cfg.File != "" {
		log.Printf("mode policy: %s", cfg.File)
		return router.NewFromFile(ctx, cfg.File, definitions)
	}
	return router.New(ctx, "", definitions)
}

func newCompleter(ctx context.Context, cfg *config.Config, openaiClient *openai.Client, tool chat.Tool) (ai.Completer, error) {
	switch cfg.AI.Provider {
	case "ark":
		if !cfg.AI.Enabled() {
			return nil, errors.New("Ark 凭证或模型配置缺失")
		}
		completer, err := ai.NewArkCompleter(ctx, cfg.AI.NewChatModel, []chat.Tool{tool})
		if err != nil {
			return nil, err
		}
		log.Printf("completion provider: ark model=%s", cfg.AI.Model)
		return completer, nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required")
		}
		client := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.Anthropic.APIKey))
		log.Printf("completion provider: anthropic model=%s", cfg.Anthropic.Model)
		return ai.NewAnthropicCompleter(&client, cfg.Anthropic.Model, int64(cfg.Anthropic.MaxTokens)), nil
	default:
		if openaiClient == nil {
			return nil, errors.New("OPENAI_API_KEY is required")
		}
		log.Printf("completion provider: openai model=%s", cfg.OpenAI.ChatModel)
		return ai.NewOpenAICompleter(openaiClient, cfg.OpenAI.ChatModel), nil
	}
}

func newSpeech(cfg *config.Config, openaiClient *openai.Client, format speechModel.Format) (speech.Transcriber, speech.Synthesizer, error) {
	var volc *speech.VolcengineClient
	if cfg.Speech.TranscriptionProvider == "volcengine" || cfg.Speech.SynthesisProvider == "volcengine" {
		client, err := speech.NewVolcengineClient(speech.VolcengineOptions{
			AppID:       cfg.Speech.AppID,
			AccessToken: cfg.Speech.AccessToken,
			Language:    cfg.Speech.ASRLanguage,
			Voice:       cfg.Speech.TTSVoice,
			Speed:       cfg.Speech.TTSSpeed,
			Volume:      cfg.Speech.TTSVolume,
			Format:      format,
			Timeout:     time.Duration(cfg.Speech.Timeout) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		volc = client
	}

	var transcriber speech.Transcriber
	switch cfg.Speech.TranscriptionProvider {
	case "volcengine":
		transcriber = volc
	case "openai":
		if openaiClient == nil {
			return nil, nil, errors.New("OPENAI_API_KEY is required for openai transcription")
		}
		transcriber = speech.NewOpenAITranscriber(openaiClient, cfg.OpenAI.TranscriptionModel, cfg.Speech.ASRLanguage)
	default:
		return nil, nil, fmt.Errorf("unknown TRANSCRIPTION_PROVIDER %q", cfg.Speech.TranscriptionProvider)
	}

	var synthesizer speech.Synthesizer
	switch cfg.Speech.SynthesisProvider {
	case "volcengine":
		synthesizer = volc
	case "openai":
		if openaiClient == nil {
			return nil, nil, errors.New("OPENAI_API_KEY is required for openai synthesis")
		}
		synthesizer = speech.NewOpenAISynthesizer(openaiClient, cfg.OpenAI.TTSModel, cfg.OpenAI.Voice)
	default:
		return nil, nil, fmt.Errorf("unknown SYNTHESIS_PROVIDER %q", cfg.Speech.SynthesisProvider)
	}

	log.Printf("speech providers: transcription=%s synthesis=%s sample_rate=%d",
		cfg.Speech.TranscriptionProvider, cfg.Speech.SynthesisProvider, format.SampleRate)
	return transcriber, synthesizer, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, routes http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Journal voice relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
