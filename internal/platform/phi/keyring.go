package phi

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// FromHexKey builds a FieldEncryptor from a 64-character hex key, the format
// carried in configuration. An empty key disables encryption (development
// mode) and returns nil after logging a warning; an invalid key is an error
// so the server refuses to start misconfigured.
func FromHexKey(key string, logger zerolog.Logger) (FieldEncryptor, error) {
	if key == "" {
		logger.Warn().Msg("PHI encryption disabled: PHI_ENCRYPTION_KEY is not set")
		return nil, nil
	}

	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
	}

	enc, err := NewEncryptor(keyBytes)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("PHI field-level encryption enabled")
	return enc, nil
}
