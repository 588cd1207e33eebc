package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/andyleap/ndirp/internal/agent"
	"github.com/andyleap/ndirp/internal/api"
	"github.com/andyleap/ndirp/internal/authstate"
	"github.com/andyleap/ndirp/internal/flow"
	"github.com/andyleap/ndirp/internal/oauth"
	"github.com/andyleap/ndirp/internal/provider"
	"github.com/andyleap/ndirp/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Provider profiles
	var providers *provider.Registry
	if cfg.ProvidersFile != "" {
		providers, err = provider.Load(cfg.ProvidersFile)
	} else {
		providers, err = provider.Default()
	}
	if err != nil {
		slog.Error("Failed to load provider profiles", "error", err, "file", cfg.ProvidersFile)
		os.Exit(1)
	}

	// Setup auth state storage
	var stateStorage storage.StateStorage
	switch cfg.StoreMode {
	case "s3":
		s3Storage, err := storage.NewS3Storage(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.UseSSL)
		if err != nil {
			slog.Error("Failed to create S3 storage", "error", err)
			os.Exit(1)
		}
		stateStorage = s3Storage
		slog.Info("Using S3 storage", "endpoint", cfg.S3.Endpoint, "bucket", cfg.S3.Bucket)
	case "filesystem":
		fsStorage, err := storage.NewFilesystemStorage(cfg.DataPath)
		if err != nil {
			slog.Error("Failed to create filesystem storage", "error", err)
			os.Exit(1)
		}
		stateStorage = fsStorage
		slog.Info("Using filesystem storage", "path", cfg.DataPath)
	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		ctx := context.Background()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}

		stateStorage = storage.NewRedisStorage(redisClient)
		slog.Info("Using Redis storage", "addr", cfg.Redis.Addr)
	case "memory":
		stateStorage = storage.NewMemoryStorage()
		slog.Warn("Using in-memory auth state (not persistent)")
	default:
		slog.Error("Invalid STORE_MODE", "mode", cfg.StoreMode, "valid_modes", []string{"memory", "filesystem", "redis", "s3"})
		os.Exit(1)
	}

	stateKey, err := cfg.StateKey()
	if err != nil {
		slog.Error("Invalid state encryption key", "error", err)
		os.Exit(1)
	}
	keeperOpts := []authstate.Option{authstate.WithNamespace(cfg.Namespace)}
	if stateKey != nil {
		keeperOpts = append(keeperOpts, authstate.WithEncryptionKey(stateKey))
	}
	keeper, err := authstate.NewKeeper(stateStorage, keeperOpts...)
	if err != nil {
		slog.Error("Failed to create auth state keeper", "error", err)
		os.Exit(1)
	}
	if st, err := keeper.Load(context.Background()); err != nil {
		slog.Error("Failed to load auth state", "error", err)
		os.Exit(1)
	} else if st != nil {
		slog.Info("Restored auth state", "provider", st.Provider, "updated_at", st.UpdatedAt)
	}

	// Setup user agent
	var launcher agent.Launcher = agent.Browser{}
	if cfg.NoBrowser {
		launcher = agent.PrintOnly{}
	}
	manager := agent.NewManager(launcher, agent.WithTimeout(cfg.CallbackTimeout))

	if cfg.PKCEEndpoint == "" || cfg.AuthCodeEndpoint == "" {
		slog.Warn("RP backend endpoints are not configured; logins will fail", "pkce_endpoint", cfg.PKCEEndpoint, "auth_code_endpoint", cfg.AuthCodeEndpoint)
	}
	client := oauth.NewClient(cfg.PKCEEndpoint, cfg.AuthCodeEndpoint)

	flowCfg := flow.Config{
		PKCEEnabled:      cfg.PKCEEnabled(),
		RedirectURIs:     cfg.RedirectURIs,
		SelectedRedirect: cfg.SelectedRedirect,
		AppLaunchKey:     cfg.AppLaunchKey,
		AppLinkValue:     cfg.AppLinkValue,
	}
	redirectURI, _, err := flowCfg.RedirectURI()
	if err != nil {
		slog.Error("Invalid redirect selection", "error", err)
		os.Exit(1)
	}
	loginFlow := flow.New(flowCfg, providers, client, manager, keeper)

	// Setup routes
	apiServer := api.NewServer(loginFlow)
	oauthAPIHandlers := api.NewOAuthAPIHandlers(loginFlow, manager)
	handler := api.Routes(apiServer, oauthAPIHandlers, cfg.RedirectURIs)

	// Create HTTP server
	server := &http.Server{
		Addr:    "127.0.0.1:" + cfg.Port,
		Handler: handler,
	}

	fmt.Printf("RP sample starting on http://127.0.0.1:%s\n", cfg.Port)
	fmt.Printf("Providers: %v (PKCE enabled: %t)\n", providers.Names(), cfg.PKCEEnabled())
	fmt.Println("API endpoints:")
	fmt.Println("  POST   /api/v1/login/{provider} - Start a login (opens the browser)")
	fmt.Println("  POST   /api/v1/login/cancel     - Abandon the pending login")
	fmt.Println("  POST   /api/v1/redirect         - Deliver a captured redirect URL")
	fmt.Println("  GET    /api/v1/status           - Status lines and stored auth state")
	fmt.Println("  DELETE /api/v1/state            - Clear the stored auth state")
	fmt.Println("  GET    /health                  - Health check")
	fmt.Println()
	fmt.Printf("Redirect URI in use: %s\n", redirectURI)

	if err := server.ListenAndServe(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
