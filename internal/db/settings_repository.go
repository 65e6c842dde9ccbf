package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/unklstewy/overhead/pkg/config"
)

// ConfigKey is the settings row holding the application configuration.
const ConfigKey = "config"

// SettingsRepository persists the configuration in the settings table.
// It implements config.Store.
type SettingsRepository struct {
	db  *DB
	key string
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db, key: ConfigKey}
}

var _ config.Store = (*SettingsRepository)(nil)

// Exists reports whether a configuration has been saved.
func (r *SettingsRepository) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := WithRetry(ctx, func() error {
		return r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM settings WHERE key = $1)`, r.key,
		).Scan(&exists)
	}, 2)
	if err != nil {
		return false, fmt.Errorf("failed to query settings: %w", err)
	}
	return exists, nil
}

// Load returns the saved configuration, or defaults when none is saved.
func (r *SettingsRepository) Load(ctx context.Context) (*config.Config, error) {
	var raw []byte
	err := WithRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, `SELECT value FROM settings WHERE key = $1`, r.key)
		if err != nil {
			return err
		}
		defer rows.Close()
		raw = nil
		if rows.Next() {
			if err := rows.Scan(&raw); err != nil {
				return err
			}
		}
		return rows.Err()
	}, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if raw == nil {
		return config.Decode([]byte("{}"))
	}
	return config.Decode(raw)
}

// Save stores cfg, replacing any previous configuration.
func (r *SettingsRepository) Save(ctx context.Context, cfg *config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	err = WithRetry(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, r.key, string(data))
		return err
	}, 2)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
