package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindbridge-dev/mindbridge"
	"github.com/mindbridge-dev/mindbridge/internal/llm/provider"
	"github.com/mindbridge-dev/mindbridge/internal/relay"
	"github.com/mindbridge-dev/mindbridge/internal/server"
	"github.com/mindbridge-dev/mindbridge/pkg/observability"
	"github.com/mindbridge-dev/mindbridge/pkg/session"
)

var (
	// Version information (set via ldflags)
	Version = "dev"

	// Command line flags
	configFile   = flag.String("config", getEnv("CONFIG_FILE", ""), "Configuration file (YAML)")
	httpPort     = flag.Int("http-port", getEnvInt("PORT", 0), "HTTP server port (overrides config)")
	providerName = flag.String("provider", getEnv("PROVIDER", ""), "Backend provider name (overrides config)")
	modelName    = flag.String("model", getEnv("MODEL", ""), "Backend model (overrides config)")
)

func main() {
	flag.Parse()

	log.Printf("Starting MindBridge relay v%s", Version)

	config, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	applyFlagOverrides(config)
	log.Printf("Provider: %s, HTTP Port: %d", config.Provider.Name, config.Server.Port)

	// Initialize observability
	observability.InitMetrics()
	healthChecker := observability.InitHealthChecker()
	healthChecker.RegisterCheck(observability.PingCheck())

	svc, err := buildRelayService(config)
	if err != nil {
		log.Fatalf("Relay setup error: %v", err)
	}
	healthChecker.RegisterCheck(observability.BackendConfiguredCheck(svc.Configured))

	// When the deployment shares session storage over redis, readiness
	// reflects its availability.
	if config.Session.Store == "redis" {
		redisBackend, err := session.NewRedisBackend(config.Session.Redis)
		if err != nil {
			log.Printf("Warning: session storage unavailable: %v", err)
		} else {
			defer func() { _ = redisBackend.Close() }()
			healthChecker.RegisterCheck(observability.StorageCheck(redisBackend.Ping))
		}
	}

	var limiter *relay.RateLimiter
	if config.Relay.RateLimit > 0 {
		limiter = relay.NewRateLimiter(config.Relay.RateLimit, config.Relay.RateBurst)
		log.Printf("Rate limiting: %.1f req/s per client (burst %d)", config.Relay.RateLimit, config.Relay.RateBurst)
	}

	srv := server.New(config.Server.Port, relay.NewHandler(svc, limiter))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Starting HTTP server on :%d", config.Server.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down relay...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Println("Relay stopped")
}

// loadConfig reads the config file, or falls back to defaults when no file
// was given.
func loadConfig(path string) (*mindbridge.Config, error) {
	if path == "" {
		return mindbridge.DefaultConfig(), nil
	}
	loader := mindbridge.NewConfigLoader(&mindbridge.OSFileReader{})
	return loader.LoadConfig(path)
}

func applyFlagOverrides(config *mindbridge.Config) {
	if *httpPort != 0 {
		config.Server.Port = *httpPort
	}
	if *providerName != "" {
		config.Provider.Name = *providerName
	}
	if *modelName != "" {
		config.Provider.Model = *modelName
	}
}

// buildRelayService constructs the provider and relay service. A missing
// backend credential is a warning, not a startup failure: the server comes
// up, reports unconfigured on /health, and fails chat requests fast without
// leaking why.
func buildRelayService(config *mindbridge.Config) (*relay.Service, error) {
	providerConfig := map[string]any{}
	if config.Provider.APIKey != "" {
		providerConfig["api_key"] = config.Provider.APIKey
	}
	if config.Provider.BaseURL != "" {
		providerConfig["base_url"] = config.Provider.BaseURL
	}

	var prov provider.Provider
	p, err := provider.New(config.Provider.Name, providerConfig)
	if err != nil {
		log.Printf("Warning: backend provider unavailable: %v", err)
	} else {
		prov = provider.NewInstrumentedProvider(p)
	}

	policy := ""
	if config.Relay.PolicyFile != "" {
		data, err := os.ReadFile(config.Relay.PolicyFile) // #nosec G304 - operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		policy = string(data)
	}

	return relay.NewService(prov, relay.ServiceConfig{
		Model:     config.Provider.Model,
		MaxTokens: config.Relay.MaxTokens,
		Policy:    policy,
	}), nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
