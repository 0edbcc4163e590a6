package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/llm"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Output    string   `yaml:"output" json:"output"`
	OutputPDF string   `yaml:"outputPDF" json:"outputPDF"`
	Platforms []string `yaml:"platforms" json:"platforms"`
	User      string   `yaml:"user" json:"user"`

	Options generator.Options `yaml:"options" json:"options"`

	LLM struct {
		Provider  string        `yaml:"provider" json:"provider"`
		BaseURL   string        `yaml:"base" json:"base"`
		Model     string        `yaml:"model" json:"model"`
		APIKey    string        `yaml:"key" json:"key"`
		Timeout   time.Duration `yaml:"timeout" json:"timeout"`
		MaxTokens int           `yaml:"maxTokens" json:"maxTokens"`
	} `yaml:"llm" json:"llm"`

	DB struct {
		Driver string `yaml:"driver" json:"driver"`
		DSN    string `yaml:"dsn" json:"dsn"`
	} `yaml:"db" json:"db"`

	Server struct {
		Listen      string            `yaml:"listen" json:"listen"`
		CORSOrigins []string          `yaml:"corsOrigins" json:"corsOrigins"`
		Tokens      map[string]string `yaml:"tokens" json:"tokens"`
	} `yaml:"server" json:"server"`

	Limits struct {
		ExtractTimeout  time.Duration `yaml:"extractTimeout" json:"extractTimeout"`
		MaxInputTokens  int           `yaml:"maxInputTokens" json:"maxInputTokens"`
		MaxContentChars int           `yaml:"maxContentChars" json:"maxContentChars"`
		Concurrency     int           `yaml:"concurrency" json:"concurrency"`
		// AllowPrivateHosts is for local development against loopback sites.
		AllowPrivateHosts bool `yaml:"allowPrivateHosts" json:"allowPrivateHosts"`
	} `yaml:"limits" json:"limits"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc into cfg for fields that are still
// unset, so explicit flags and environment keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	fill(&cfg.OutputPath, fc.Output)
	fill(&cfg.OutputPDFPath, fc.OutputPDF)
	fill(&cfg.UserID, fc.User)
	if len(cfg.Platforms) == 0 && len(fc.Platforms) > 0 {
		cfg.Platforms = append([]string{}, fc.Platforms...)
	}
	mergeOptions(&cfg.Options, fc.Options)

	fill(&cfg.LLMProvider, fc.LLM.Provider)
	fill(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	fill(&cfg.LLMModel, fc.LLM.Model)
	fill(&cfg.LLMAPIKey, fc.LLM.APIKey)
	if cfg.LLMTimeout == 0 && fc.LLM.Timeout > 0 {
		cfg.LLMTimeout = fc.LLM.Timeout
	}
	if cfg.MaxOutputTokens == 0 && fc.LLM.MaxTokens > 0 {
		cfg.MaxOutputTokens = fc.LLM.MaxTokens
	}

	fill(&cfg.DBDriver, fc.DB.Driver)
	fill(&cfg.DBDSN, fc.DB.DSN)

	fill(&cfg.ListenAddr, fc.Server.Listen)
	if len(cfg.CORSOrigins) == 0 && len(fc.Server.CORSOrigins) > 0 {
		cfg.CORSOrigins = append([]string{}, fc.Server.CORSOrigins...)
	}
	if len(cfg.AuthTokens) == 0 && len(fc.Server.Tokens) > 0 {
		cfg.AuthTokens = make(map[string]string, len(fc.Server.Tokens))
		for k, v := range fc.Server.Tokens {
			cfg.AuthTokens[k] = v
		}
	}

	if cfg.ExtractTimeout == 0 && fc.Limits.ExtractTimeout > 0 {
		cfg.ExtractTimeout = fc.Limits.ExtractTimeout
	}
	if cfg.MaxInputTokens == 0 && fc.Limits.MaxInputTokens > 0 {
		cfg.MaxInputTokens = fc.Limits.MaxInputTokens
	}
	if cfg.MaxContentChars == 0 && fc.Limits.MaxContentChars > 0 {
		cfg.MaxContentChars = fc.Limits.MaxContentChars
	}
	if cfg.Concurrency == 0 && fc.Limits.Concurrency > 0 {
		cfg.Concurrency = fc.Limits.Concurrency
	}
	if fc.Limits.AllowPrivateHosts {
		cfg.AllowPrivateHosts = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
}

func mergeOptions(dst *generator.Options, src generator.Options) {
	if dst.Temperature == nil {
		dst.Temperature = src.Temperature
	}
	if dst.CreativityLevel == nil {
		dst.CreativityLevel = src.CreativityLevel
	}
	if dst.ContentLength == nil {
		dst.ContentLength = src.ContentLength
	}
	if dst.IncludeHashtags == nil {
		dst.IncludeHashtags = src.IncludeHashtags
	}
	if dst.IncludeEmojis == nil {
		dst.IncludeEmojis = src.IncludeEmojis
	}
	if dst.TargetAudience == "" {
		dst.TargetAudience = src.TargetAudience
	}
	if dst.CustomInstructions == "" {
		dst.CustomInstructions = src.CustomInstructions
	}
}

// ValidateConfig performs minimal validation of required settings. Server
// mode does not need generation input.
func ValidateConfig(cfg Config, server bool) error {
	if p := strings.ToLower(strings.TrimSpace(cfg.LLMProvider)); p != "" && !slices.Contains(llm.Providers(), p) {
		return fmt.Errorf("config: unknown llm.provider %q", cfg.LLMProvider)
	}
	if cfg.MaxInputTokens < 0 || cfg.MaxContentChars < 0 || cfg.Concurrency < 0 || cfg.MaxOutputTokens < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if server {
		if strings.TrimSpace(cfg.ListenAddr) == "" {
			return errors.New("config: listen address is required (or set LISTEN_ADDR)")
		}
		return nil
	}
	if strings.TrimSpace(cfg.Content) == "" && strings.TrimSpace(cfg.URL) == "" {
		return errors.New("config: one of content or url is required")
	}
	if len(cfg.Platforms) == 0 {
		return errors.New("config: at least one platform is required")
	}
	return nil
}
