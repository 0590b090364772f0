// cmd/meal-vision/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"golang.org/x/sync/errgroup"

	"mcp-meal-vision/internal/analysis"
	"mcp-meal-vision/internal/analysis/gemini"
	"mcp-meal-vision/internal/analysis/openai"
	"mcp-meal-vision/internal/analysis/stub"
	"mcp-meal-vision/internal/config"
	"mcp-meal-vision/internal/metrics"
	"mcp-meal-vision/internal/quota"
	"mcp-meal-vision/internal/server"
	"mcp-meal-vision/internal/storage"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	transport  = flag.String("transport", "", "Transport mode: http or sse")
	port       = flag.Int("port", 0, "Port for HTTP transport")
	host       = flag.String("host", "", "Host address")
	address    = flag.String("address", "", "Address (alias for host)")
	dbPath     = flag.String("db-path", "", "Database path")
	provider   = flag.String("provider", "", "AI provider: gemini, openai or stub")
	version    = flag.Bool("version", false, "Show version")
)

const shutdownTimeout = 15 * time.Second

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("mcp-meal-vision version %s\n", server.Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		log.WithError(err).Fatal("config.load")
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("config.invalid")
	}

	setupLogging(cfg.Log)

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("server.exit")
	}
}

// applyFlags lets explicit command line flags win over file and environment.
func applyFlags(cfg *config.Config) {
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *address != "" {
		cfg.Server.Host = *address
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if *provider != "" && *provider != cfg.Provider.Name {
		cfg.Provider.Name = *provider
		cfg.Provider.APIKey = apiKeyFor(*provider)
	}
}

func apiKeyFor(name string) string {
	switch name {
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	// Level was checked by config.Validate.
	level, _ := log.ParseLevel(cfg.Level)
	log.SetLevel(level)
}

func newProvider(cfg config.ProviderConfig, timeout time.Duration) (analysis.Provider, error) {
	// Per-attempt timeouts come from the context; this bounds stuck connections.
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}

	switch cfg.Name {
	case "gemini":
		return gemini.NewClient(gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}, httpClient), nil
	case "openai":
		return openai.NewClient(openai.Config{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL}, httpClient), nil
	case "stub":
		return stub.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

func run(cfg *config.Config) error {
	stor, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer stor.Close()

	counters, err := quota.New(cfg.Quota)
	if err != nil {
		return fmt.Errorf("failed to initialize quota store: %w", err)
	}
	defer counters.Close()

	p, err := newProvider(cfg.Provider, cfg.Analysis.Timeout)
	if err != nil {
		return err
	}
	if !p.HasCredentials() {
		log.WithField("provider", p.Name()).Warn("provider.credentials.missing")
	}

	metrics.Register()
	client := analysis.NewClient(p, analysis.Options{
		MaxAttempts:   cfg.Analysis.MaxAttempts,
		BaseDelay:     cfg.Analysis.BaseDelay,
		Timeout:       cfg.Analysis.Timeout,
		MaxImageBytes: cfg.Analysis.MaxImageBytes,
		Prompt: analysis.PromptOptions{
			InsightLanguage: cfg.Analysis.InsightLanguage,
			MaxOutputTokens: cfg.Analysis.MaxOutputTokens,
			Temperature:     cfg.Analysis.Temperature,
		},
		Pricing:  analysis.NewPricing(cfg.Analysis.InputPricePerMillion, cfg.Analysis.OutputPricePerMillion),
		Logger:   log.Log,
		Observer: metrics.Observer{},
	})

	srv, err := server.NewMealVisionServer(&server.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Transport: cfg.Server.Transport,
		PublicURL: cfg.BaseURL(),
		// base64 inflates by 4/3; leave room for the other arguments.
		MaxBodyBytes: int64(cfg.Analysis.MaxImageBytes)*4/3 + 1<<20,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
	}, server.Deps{
		Storage:  stor,
		Analyzer: client,
		Limiter:  quota.NewLimiter(counters, cfg.Quota.DailyLimit),
		Logger:   log.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("server.shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	log.WithFields(log.Fields{
		"addr":     cfg.Addr(),
		"provider": p.Name(),
		"model":    p.Model(),
		"quota":    cfg.Quota.Driver,
	}).Info("server.configured")

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
