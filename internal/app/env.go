package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoadEnvFiles loads dotenv files into the process environment. Later files
// override earlier ones and missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Overload(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		log.Debug().Str("file", p).Msg("loaded env file")
	}
	return nil
}
