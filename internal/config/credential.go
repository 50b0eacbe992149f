package config

import (
	"errors"
	"strings"
)

// APIKeyPrefix is the prefix every accepted OpenAI key carries.
const APIKeyPrefix = "sk-"

var (
	// ErrMissingAPIKey is returned when neither the flag nor the environment supplies a key.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")
	// ErrInvalidAPIKey is returned when the supplied key does not look like an OpenAI key.
	ErrInvalidAPIKey = errors.New("invalid OpenAI API key")
)

// IsValidAPIKey reports whether key has the expected shape.
func IsValidAPIKey(key string) bool {
	return strings.HasPrefix(key, APIKeyPrefix)
}

// ResolveAPIKey picks the credential for this run. A valid key passed on
// the command line wins; otherwise a valid environment key is used.
// ErrMissingAPIKey means neither source is set, ErrInvalidAPIKey that no
// set key is valid.
func ResolveAPIKey(flagKey, envKey string) (string, error) {
	flagKey, envKey = strings.TrimSpace(flagKey), strings.TrimSpace(envKey)
	for _, key := range []string{flagKey, envKey} {
		if IsValidAPIKey(key) {
			return key, nil
		}
	}
	if flagKey == "" && envKey == "" {
		return "", ErrMissingAPIKey
	}
	return "", ErrInvalidAPIKey
}
