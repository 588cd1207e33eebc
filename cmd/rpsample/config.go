package main

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/chacha20poly1305"
)

// Config holds all configuration options
type Config struct {
	// Server config
	Port     string `long:"port" env:"PORT" default:"8089" description:"Loopback port for the control API and HTTP redirects"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`

	// RP backend
	ProvidersFile    string `long:"providers-file" env:"PROVIDERS_FILE" description:"YAML provider profiles (built-in staging profiles when empty)"`
	PKCEEndpoint     string `long:"pkce-endpoint" env:"PKCE_ENDPOINT" description:"Session parameters URL; {code_challenge} is replaced with the challenge"`
	AuthCodeEndpoint string `long:"auth-code-endpoint" env:"AUTH_CODE_ENDPOINT" description:"URL the authorization code is forwarded to"`

	// Authorization request
	RedirectURIs     []string      `long:"redirect-uri" env:"REDIRECT_URIS" env-delim:"," default:"sg.gov.singpass.app://ndisample.gov.sg/rp/sample" default:"https://app.singpass.gov.sg/rp/sample" description:"Redirect URIs: custom scheme first, claimed HTTPS second"`
	SelectedRedirect int           `long:"selected-redirect" env:"SELECTED_REDIRECT" default:"0" description:"Index of the redirect URI to use"`
	DisablePKCE      bool          `long:"disable-pkce" env:"DISABLE_PKCE" description:"Skip PKCE and use the provider's endpoint set without it"`
	AppLaunchKey     string        `long:"app-launch-key" env:"APP_LAUNCH_KEY" default:"app_launch_url" description:"Query parameter naming the app link"`
	AppLinkValue     string        `long:"app-link-value" env:"APP_LINK_VALUE" default:"sg.gov.singpass.app" description:"App link marker value"`
	NoBrowser        bool          `long:"no-browser" env:"NO_BROWSER" description:"Log the authorization URL instead of opening the browser"`
	CallbackTimeout  time.Duration `long:"callback-timeout" env:"CALLBACK_TIMEOUT" default:"0s" description:"Cancel a login with no redirect after this long (0 waits forever)"`

	// State storage
	StoreMode     string `long:"store-mode" env:"STORE_MODE" default:"filesystem" choice:"memory" choice:"filesystem" choice:"redis" choice:"s3" description:"Auth state storage backend"`
	Namespace     string `long:"namespace" env:"STATE_NAMESPACE" default:"group.net.openid.appauth.Example" description:"Shared storage namespace for the auth state"`
	DataPath      string `long:"data-path" env:"DATA_PATH" default:"./data" description:"Filesystem storage directory"`
	EncryptionKey string `long:"state-encryption-key" env:"STATE_ENCRYPTION_KEY" description:"32-byte key (hex or base64) sealing the stored auth state"`

	// S3 storage
	S3 struct {
		Endpoint  string `long:"s3-endpoint" env:"S3_ENDPOINT" default:"localhost:9000" description:"S3 endpoint (host:port)"`
		Bucket    string `long:"s3-bucket" env:"S3_BUCKET" default:"ndirp-state" description:"S3 bucket name"`
		AccessKey string `long:"s3-access-key" env:"S3_ACCESS_KEY" default:"minioadmin" description:"S3 access key"`
		SecretKey string `long:"s3-secret-key" env:"S3_SECRET_KEY" default:"minioadmin" description:"S3 secret key"`
		UseSSL    bool   `long:"s3-use-ssl" env:"S3_USE_SSL" description:"Use SSL for S3 connections"`
	} `group:"S3 Storage Options"`

	// Redis config
	Redis struct {
		Addr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
		Password string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
		DB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`
	} `group:"Redis Options"`
}

// PKCEEnabled reports the effective PKCE switch. PKCE is on unless disabled.
func (c *Config) PKCEEnabled() bool {
	return !c.DisablePKCE
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// StateKey decodes the state encryption key. It returns nil when none is set.
func (c *Config) StateKey() ([]byte, error) {
	raw := strings.TrimSpace(c.EncryptionKey)
	if raw == "" {
		return nil, nil
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	return nil, fmt.Errorf("state encryption key must be %d bytes, hex or base64 encoded", chacha20poly1305.KeySize)
}

// LoadConfig parses configuration from .env, environment variables and command line flags
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var config Config

	parser := flags.NewParser(&config, flags.Default)
	parser.Usage = "[OPTIONS]"

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}
