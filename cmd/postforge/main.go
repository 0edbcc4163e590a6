// Command postforge generates platform posts from text or a URL once and
// prints them as Markdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/postforge/internal/app"
	"github.com/hyperifyio/postforge/internal/apperr"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath  string
		envFiles    string
		content     string
		contentFile string
		url         string
		platforms   string
		user        string
		outputPath  string
		pdfPath     string
		llmProvider string
		llmBaseURL  string
		llmModel    string
		llmKey      string
		dbDriver    string
		dbDSN       string
		audience    string
		custom      string
		noHashtags  bool
		emojis      bool
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load")
	flag.StringVar(&content, "content", "", "Source text to turn into posts")
	flag.StringVar(&contentFile, "content.file", "", "Read source text from a file ('-' for stdin)")
	flag.StringVar(&url, "url", "", "Extract source text from this URL")
	flag.StringVar(&platforms, "platforms", "", "Comma-separated platform ids, e.g. twitter,linkedin")
	flag.StringVar(&user, "user", "", "User id charged for the generation")
	flag.StringVar(&outputPath, "out", "", "Write Markdown here instead of stdout")
	flag.StringVar(&pdfPath, "pdf", "", "Also write a PDF rendering to this path")
	flag.StringVar(&llmProvider, "llm.provider", "", "LLM provider: openai, openrouter, groq, gemini or local")
	flag.StringVar(&llmBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	flag.StringVar(&llmModel, "llm.model", "", "Model name")
	flag.StringVar(&llmKey, "llm.key", "", "API key")
	flag.StringVar(&dbDriver, "db.driver", "", "Database driver: sqlite or postgres")
	flag.StringVar(&dbDSN, "db.dsn", "", "Database DSN")
	flag.StringVar(&audience, "audience", "", "Target audience hint")
	flag.StringVar(&custom, "instructions", "", "Custom instructions for the model")
	flag.BoolVar(&noHashtags, "no-hashtags", false, "Do not include hashtags")
	flag.BoolVar(&emojis, "emojis", false, "Allow emojis")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("postforge %s (%s, %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return
	}
	setLogLevel(verbose)

	if err := app.LoadEnvFiles(splitList(envFiles)...); err != nil {
		log.Fatal().Err(err).Msg("load env files")
	}

	if contentFile != "" {
		b, err := readContentFile(contentFile)
		if err != nil {
			log.Fatal().Err(err).Msg("read content file")
		}
		content = string(b)
	}

	cfg := app.Config{
		Content:       content,
		URL:           url,
		Platforms:     splitList(platforms),
		UserID:        user,
		OutputPath:    outputPath,
		OutputPDFPath: pdfPath,
		Verbose:       verbose,
	}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("load config file")
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	if err := app.ApplyEnvOverrides(&cfg); err != nil {
		log.Fatal().Err(err).Msg("environment")
	}
	// Flags win over file and environment.
	override(&cfg.LLMProvider, llmProvider)
	override(&cfg.LLMBaseURL, llmBaseURL)
	override(&cfg.LLMModel, llmModel)
	override(&cfg.LLMAPIKey, llmKey)
	override(&cfg.DBDriver, dbDriver)
	override(&cfg.DBDSN, dbDSN)
	override(&cfg.Options.TargetAudience, audience)
	override(&cfg.Options.CustomInstructions, custom)
	if noHashtags {
		f := false
		cfg.Options.IncludeHashtags = &f
	}
	if emojis {
		t := true
		cfg.Options.IncludeEmojis = &t
	}
	setLogLevel(cfg.Verbose)

	if err := app.ValidateConfig(cfg, false); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Str("kind", string(apperr.KindOf(err))).Msg("generation failed")
		os.Exit(exitCode(err))
	}
}

func run(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx, os.Stdout)
}

// exitCode maps caller mistakes and quota refusals to 2, everything else to 1.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.InvalidRequest, apperr.ContentTooLong, apperr.TokenLimitExceeded,
		apperr.DailyLimitExceeded, apperr.MonthlyLimitExceeded,
		apperr.InsufficientContent:
		return 2
	}
	return 1
}

func readContentFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func setLogLevel(verbose bool) {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func override(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
