package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danielcopper/openapi-image-gen/internal/catalog"
	"github.com/danielcopper/openapi-image-gen/internal/config"
	"github.com/danielcopper/openapi-image-gen/internal/gateway"
	"github.com/danielcopper/openapi-image-gen/internal/httpapi"
	"github.com/danielcopper/openapi-image-gen/internal/provider"
	"github.com/danielcopper/openapi-image-gen/internal/storage"
	"github.com/danielcopper/openapi-image-gen/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
		level   string
	)
	root := &cobra.Command{
		Use:           "imagegen",
		Short:         "Unified image generation gateway over proxy, OpenAI and Gemini backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if level != "" {
				cfg.LogLevel = level
			}
			return serve(cfg)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "Path to config file (yaml, json or toml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080")
	root.Flags().StringVar(&level, "log-level", "", "Log level: debug|info|warn|error")
	return root
}

// loadConfig layers the sources: .env file, optional config file,
// IMAGEGEN_* environment, then documented defaults.
func loadConfig(path string) (config.Config, error) {
	_ = godotenv.Load()
	var cfg config.Config
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg = config.FromEnv(cfg)
	return config.ApplyDefaults(cfg), nil
}

func serve(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	var store *storage.Store
	if *cfg.SaveLocally {
		var err error
		store, err = storage.New(cfg.StoragePath, cfg.BaseURL, true, log)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	adapters := map[types.Provider]provider.Adapter{}
	var proxy *provider.Proxy
	if cfg.ProxyBaseURL != "" {
		proxy = provider.NewProxy(cfg.ProxyBaseURL, cfg.ProxyAPIKey, timeout, log)
		adapters[types.ProviderProxy] = proxy
	}
	if cfg.OpenAIAPIKey != "" {
		adapters[types.ProviderOpenAI] = provider.NewOpenAI("", cfg.OpenAIAPIKey, timeout, log)
	}
	if cfg.GeminiAPIKey != "" {
		adapters[types.ProviderGemini] = provider.NewGemini("", cfg.GeminiAPIKey, timeout, log)
	}
	if len(adapters) == 0 {
		log.Warn().Msg("no backend configured, all generation requests will fail")
	}

	// The proxy routes to both vendor families, so its presence makes both
	// default model sets reachable.
	defaults := catalog.DefaultModels(proxy != nil || cfg.OpenAIAPIKey != "",
		proxy != nil || cfg.GeminiAPIKey != "")
	var fetcher catalog.Fetcher
	if proxy != nil {
		fetcher = proxy
	}
	reg := catalog.NewRegistry(fetcher, time.Duration(cfg.RegistryTTLSeconds)*time.Second, defaults, log)

	var dispStore gateway.Store
	if store != nil {
		dispStore = store
	}
	disp := gateway.New(reg, adapters, dispStore, gateway.Options{
		DefaultModel:    cfg.DefaultModel,
		FallbackEnabled: *cfg.DirectFallback,
	}, log)

	httpapi.SetLogger(log)
	httpapi.SetRequestTimeoutSeconds(int64(cfg.RequestTimeoutSeconds))
	httpapi.SetBearerToken(cfg.BearerToken)
	httpapi.SetInlineImages(cfg.InlineImages)
	if store != nil {
		httpapi.SetImagesDir(store.Dir())
	}
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Authorization", "Content-Type", "X-Log-Level"})
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	mux := httpapi.NewMux(disp)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).
			Bool("proxy", proxy != nil).
			Bool("openai", cfg.OpenAIAPIKey != "").
			Bool("gemini", cfg.GeminiAPIKey != "").
			Msg("imagegen listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
