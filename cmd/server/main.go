package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/internal/ai/provider/gemini"
	"github.com/parley-ai/parley/internal/ai/provider/openai"
	"github.com/parley-ai/parley/internal/ai/provider/registry"
	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
	"github.com/parley-ai/parley/internal/chat/biz"
	chatdata "github.com/parley-ai/parley/internal/chat/data"
	"github.com/parley-ai/parley/internal/chat/dispatch"
	"github.com/parley-ai/parley/internal/chat/service"
	"github.com/parley-ai/parley/internal/conf"
	"github.com/parley-ai/parley/internal/data"
	"github.com/parley-ai/parley/internal/mode"
	"github.com/parley-ai/parley/internal/pkg/logger"
	"github.com/parley-ai/parley/internal/pkg/workerpool"
	"github.com/parley-ai/parley/internal/server"
	"github.com/parley-ai/parley/internal/tool"
	"github.com/parley-ai/parley/internal/tool/builtin"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(&config.Log); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Provider registry
	providers := registry.New()
	registerProvider(providers, "openai", config.Providers.OpenAI, log.Logger, func(cfg *providertypes.Config) (providertypes.Provider, error) {
		return openai.New(cfg)
	})
	registerProvider(providers, "gemini", config.Providers.Gemini, log.Logger, func(cfg *providertypes.Config) (providertypes.Provider, error) {
		return gemini.New(cfg)
	})
	if len(providers.List()) == 0 {
		log.Fatal("no provider configured; set at least one api key")
	}

	// Tool registry
	tools := tool.NewRegistry(config.Engine.ToolTimeout, log.Logger)
	httpClient := &http.Client{Timeout: 30 * time.Second}
	registerTools(tools, config, d, httpClient, log.Logger)

	// Worker pool for sibling tool calls
	pool, err := workerpool.New(&workerpool.Config{Workers: config.Engine.Workers}, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Shutdown()

	// Conversation store
	store := newStore(config, d, log.Logger)

	modes := mode.NewRegistry(config.Modes)

	manager := biz.NewManager(providers, tools, modes, store, pool, nil, biz.Config{
		DefaultModel:       config.Engine.DefaultModel,
		HistoryTokenBudget: config.Engine.HistoryTokenBudget,
		Loop: dispatch.Config{
			MaxIterations:   config.Engine.MaxIterations,
			ProviderRetries: config.Engine.ProviderRetries,
			RetryBackoff:    config.Engine.RetryBackoff,
		},
	}, log.Logger)

	chatService := service.NewChatService(manager, modes, providers, log.Logger)
	httpServer := server.NewHTTPServer(config, log.Logger, chatService)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func registerProvider(providers *registry.Registry, name string, cfg conf.ProviderConfig, log *zap.Logger, build func(*providertypes.Config) (providertypes.Provider, error)) {
	if cfg.APIKey == "" {
		log.Info("provider disabled, no api key", zap.String("provider", name))
		return
	}

	provider, err := build(&providertypes.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Model:   cfg.DefaultModel,
	})
	if err != nil {
		log.Fatal("failed to build provider", zap.String("provider", name), zap.Error(err))
	}

	providers.Register(provider)
	if cfg.DefaultModel != "" {
		providers.BindModel(cfg.DefaultModel, name)
	}
	for _, model := range cfg.Models {
		providers.BindModel(model, name)
	}
	for _, prefix := range cfg.Prefixes {
		providers.BindPrefix(prefix, name)
	}
	log.Info("provider registered",
		zap.String("provider", name),
		zap.String("default_model", cfg.DefaultModel))
}

func registerTools(tools *tool.Registry, config *conf.Config, d *data.Data, client *http.Client, log *zap.Logger) {
	register := func(t tool.Tool) {
		if err := tools.Register(t); err != nil {
			log.Fatal("failed to register tool", zap.String("tool", t.Name), zap.Error(err))
		}
	}

	register(builtin.Weather(client, builtin.WeatherConfig{}))
	register(builtin.WebSearch(client, ""))
	register(builtin.WebScraper(client))
	register(builtin.URLSummarizer(client))
	register(builtin.TextAnalyzer())
	register(builtin.CommandExecutor(config.Tools.CommandAllowlist))
	register(builtin.NewURLShortener().Tool())

	if d.MinIO != nil {
		register(builtin.FileAnalyzer(&builtin.MinioFetcher{
			Client: d.MinIO,
			Bucket: config.MinIO.Bucket,
		}))
	} else {
		log.Info("file_analyzer disabled, minio not configured")
	}

	log.Info("tools registered", zap.Strings("tools", tools.List()))
}

func newStore(config *conf.Config, d *data.Data, log *zap.Logger) chatdata.ConversationStore {
	switch {
	case d.DB != nil:
		store, err := chatdata.NewPostgresStore(d.DB)
		if err != nil {
			log.Fatal("failed to initialize postgres store", zap.Error(err))
		}
		log.Info("using postgres conversation store")
		return store
	case d.Redis != nil:
		log.Info("using redis conversation store")
		return chatdata.NewRedisStore(d.Redis, config.Redis.TTL)
	default:
		log.Info("using in-memory conversation store")
		return chatdata.NewMemoryStore()
	}
}
