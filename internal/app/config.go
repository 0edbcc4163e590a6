package app

import (
	"time"

	"github.com/hyperifyio/postforge/internal/generator"
)

// Defaults applied by ApplyDefaults when a setting is left unset.
const (
	DefaultDBDriver       = "sqlite"
	DefaultDBDSN          = "file:postforge.db?_pragma=busy_timeout(5000)"
	DefaultListenAddr     = ":8080"
	DefaultLLMTimeout     = 60 * time.Second
	DefaultExtractTimeout = 15 * time.Second
	DefaultCLIUser        = "local"
)

// Config holds runtime configuration for the application.
type Config struct {
	// One-shot generation (CLI)
	Content       string
	URL           string
	Platforms     []string
	Options       generator.Options
	UserID        string
	OutputPath    string
	OutputPDFPath string

	// LLM
	LLMProvider     string
	LLMBaseURL      string
	LLMModel        string
	LLMAPIKey       string
	LLMTimeout      time.Duration
	MaxOutputTokens int

	// Storage
	DBDriver string
	DBDSN    string

	// Server
	ListenAddr  string
	CORSOrigins []string
	// AuthTokens maps bearer tokens to user ids. When empty the server
	// trusts the X-User-ID header set by a gateway.
	AuthTokens map[string]string

	// Limits
	ExtractTimeout time.Duration
	// AllowPrivateHosts lets URL extraction reach loopback and private
	// addresses. Off in production.
	AllowPrivateHosts bool
	MaxInputTokens    int
	MaxContentChars   int
	Concurrency       int

	Verbose bool
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = DefaultDBDriver
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultDBDSN
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.ExtractTimeout == 0 {
		cfg.ExtractTimeout = DefaultExtractTimeout
	}
	if cfg.UserID == "" {
		cfg.UserID = DefaultCLIUser
	}
}
