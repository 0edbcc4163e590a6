package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay lists the environment keys the application reads.
type envOverlay struct {
	LLMProvider     string        `envconfig:"LLM_PROVIDER"`
	LLMBaseURL      string        `envconfig:"LLM_BASE_URL"`
	LLMModel        string        `envconfig:"LLM_MODEL"`
	LLMAPIKey       string        `envconfig:"LLM_API_KEY"`
	LLMTimeout      time.Duration `envconfig:"LLM_TIMEOUT"`
	DBDriver        string        `envconfig:"DB_DRIVER"`
	DBDSN           string        `envconfig:"DB_DSN"`
	ListenAddr      string        `envconfig:"LISTEN_ADDR"`
	ExtractTimeout  time.Duration `envconfig:"EXTRACT_TIMEOUT"`
	MaxInputTokens  int           `envconfig:"MAX_INPUT_TOKENS"`
	MaxContentChars int           `envconfig:"MAX_CONTENT_CHARS"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS"`
	Verbose         bool          `envconfig:"VERBOSE"`
}

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file is applied and before flags, so env
// takes precedence over the file and flags stay highest.
func ApplyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	setString(&cfg.LLMProvider, env.LLMProvider)
	setString(&cfg.LLMBaseURL, env.LLMBaseURL)
	setString(&cfg.LLMModel, env.LLMModel)
	setString(&cfg.LLMAPIKey, env.LLMAPIKey)
	setString(&cfg.DBDriver, env.DBDriver)
	setString(&cfg.DBDSN, env.DBDSN)
	setString(&cfg.ListenAddr, env.ListenAddr)
	if env.LLMTimeout > 0 {
		cfg.LLMTimeout = env.LLMTimeout
	}
	if env.ExtractTimeout > 0 {
		cfg.ExtractTimeout = env.ExtractTimeout
	}
	if env.MaxInputTokens > 0 {
		cfg.MaxInputTokens = env.MaxInputTokens
	}
	if env.MaxContentChars > 0 {
		cfg.MaxContentChars = env.MaxContentChars
	}
	if len(env.CORSOrigins) > 0 {
		cfg.CORSOrigins = append([]string{}, env.CORSOrigins...)
	}
	if env.Verbose {
		cfg.Verbose = true
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
