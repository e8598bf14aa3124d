package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"songify/internal/config"
)

// Setting keys.
const (
	KeyOpenAIAPIKey = "openai_api_key"
	KeyPiAPIKey     = "piapi_key"
)

// Setting reads one value. A missing key returns "" and false.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts one value. An empty value deletes the key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is empty")
	}
	if value == "" {
		return s.exec(ctx, "DELETE FROM settings WHERE key = ?", key)
	}
	return s.exec(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Credentials returns the stored API keys.
func (s *Store) Credentials(ctx context.Context) (config.Credentials, error) {
	var creds config.Credentials
	openai, _, err := s.Setting(ctx, KeyOpenAIAPIKey)
	if err != nil {
		return creds, err
	}
	piapi, _, err := s.Setting(ctx, KeyPiAPIKey)
	if err != nil {
		return creds, err
	}
	creds.OpenAIAPIKey = openai
	creds.PiAPIKey = piapi
	return creds, nil
}

// SetCredentials stores the non-empty keys in creds; empty keys are left alone.
func (s *Store) SetCredentials(ctx context.Context, creds config.Credentials) error {
	if v := strings.TrimSpace(creds.OpenAIAPIKey); v != "" {
		if err := s.SetSetting(ctx, KeyOpenAIAPIKey, v); err != nil {
			return err
		}
	}
	if v := strings.TrimSpace(creds.PiAPIKey); v != "" {
		if err := s.SetSetting(ctx, KeyPiAPIKey, v); err != nil {
			return err
		}
	}
	return nil
}

// ResolveCredentials overlays stored keys on top of configured ones.
func ResolveCredentials(configured, stored config.Credentials) config.Credentials {
	out := configured
	if stored.OpenAIAPIKey != "" {
		out.OpenAIAPIKey = stored.OpenAIAPIKey
	}
	if stored.PiAPIKey != "" {
		out.PiAPIKey = stored.PiAPIKey
	}
	return out
}
