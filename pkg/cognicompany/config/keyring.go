// Package config – keyring.go provides credential storage using the
// operating system's native keyring (Secret Service, Keychain or
// Credential Manager).
//
// Priority for resolving secrets:
//  1. OS keyring
//  2. Environment variable (DISCORD_TOKEN, OPENAI_API_KEY, S3_SECRET)
//  3. config.yaml value
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "cognicompany"

	KeyDiscordToken  = "discord_token"
	KeyOpenAIAPIKey  = "openai_api_key"
	KeyStorageSecret = "storage_secret_key"
)

// secret binds a keyring entry to its env variable and config field.
type secret struct {
	key    string
	env    string
	target *string
}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__cognicompany_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// KnownKey reports whether key names a secret this package resolves.
func KnownKey(key string) bool {
	switch key {
	case KeyDiscordToken, KeyOpenAIAPIKey, KeyStorageSecret:
		return true
	}
	return false
}

// ResolveSecrets fills in secrets using the priority chain
// keyring → env var → config value, updating cfg in place. Non-secret
// storage settings fall back to S3_URL and S3_KEY when unset.
func ResolveSecrets(cfg *Config, logger *slog.Logger) {
	secrets := []secret{
		{key: KeyDiscordToken, env: "DISCORD_TOKEN", target: &cfg.Discord.Token},
		{key: KeyOpenAIAPIKey, env: "OPENAI_API_KEY", target: &cfg.OpenAI.APIKey},
		{key: KeyStorageSecret, env: "S3_SECRET", target: &cfg.Storage.SecretKey},
	}

	for _, s := range secrets {
		if val := GetKeyring(s.key); val != "" {
			*s.target = val
			logger.Debug("secret loaded from OS keyring", "key", s.key)
			continue
		}
		if val := os.Getenv(s.env); val != "" {
			*s.target = val
			logger.Debug("secret loaded from environment", "key", s.key, "env", s.env)
			continue
		}
		if *s.target != "" && !isEnvReference(*s.target) {
			logger.Debug("secret loaded from config", "key", s.key)
			continue
		}
		*s.target = ""
		logger.Warn("secret not found", "key", s.key,
			"hint", "set it with: cognicompany config set-key "+s.key)
	}

	fallbackEnv(&cfg.Storage.URL, "S3_URL")
	fallbackEnv(&cfg.Storage.AccessKey, "S3_KEY")
}

// MigrateKeyToKeyring stores a secret in the OS keyring.
func MigrateKeyToKeyring(key, value string, logger *slog.Logger) error {
	if err := StoreKeyring(key, value); err != nil {
		return fmt.Errorf("storing in keyring: %w", err)
	}
	logger.Info("secret stored in OS keyring",
		"service", keyringService,
		"key", key,
		"hint", "you can now remove it from .env and config.yaml")
	return nil
}

func fallbackEnv(target *string, env string) {
	if *target != "" && !isEnvReference(*target) {
		return
	}
	*target = os.Getenv(env)
}
