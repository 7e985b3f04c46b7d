package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GenerateUUID creates a random unique UUID string
func GenerateUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID: %v", err)
	}
	return id.String(), nil
}

// IsUUID reports whether s is a canonical UUID string.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// pretty print
func PrettyPrint(v interface{}) {
	fmt.Println(PrettyString(v))
}

func PrettyString(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

// CreateFolder makes sure dir exists.
func CreateFolder(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", dir, err)
	}
	return nil
}

// SetupLogger points the global zerolog logger at a console writer on out.
// An unknown level falls back to info.
func SetupLogger(level string, out io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Caller().Logger()
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
}
