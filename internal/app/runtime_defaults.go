package app

import (
	"fmt"
	"strings"

	"github.com/domushq/domus/pkg/crypto"
)

const jwtSecretBytes = 48

// ApplyRuntimeDefaults ensures the token secrets are populated even when no configuration file is supplied.
// It returns a map describing which keys were generated so callers can log the event without exposing values.
// Generated secrets do not survive a restart, so every session is invalidated when the process stops.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	generated := make(map[string]bool)

	secrets := []struct {
		key   string
		value *string
	}{
		{key: "auth.jwt.access_secret", value: &cfg.Auth.JWT.AccessSecret},
		{key: "auth.jwt.refresh_secret", value: &cfg.Auth.JWT.RefreshSecret},
	}
	for _, secret := range secrets {
		if strings.TrimSpace(*secret.value) != "" {
			continue
		}
		value, err := crypto.GenerateToken(jwtSecretBytes)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", secret.key, err)
		}
		*secret.value = value
		generated[secret.key] = true
	}

	return generated, nil
}
