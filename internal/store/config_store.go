package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ConfigStore implements the per-tenant config(key text primary key,
// value text) table described in spec §6, the storage backing the
// sync-state service (§4.7).
type ConfigStore struct {
	*BaseStore
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{BaseStore: NewBaseStore(db, "config")}
}

// Get returns the stored value for key, or ("", false) if absent.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `SELECT value FROM config WHERE key = $1`
	var value string
	err := s.QueryRowContext(ctx, q, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a key/value pair.
func (s *ConfigStore) Set(ctx context.Context, key, value string) error {
	const q = `INSERT INTO config (key, value) VALUES ($1, $2)
	           ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	_, err := s.ExecContext(ctx, q, key, value)
	if err != nil {
		return fmt.Errorf("set config %q: %w", key, err)
	}
	return nil
}

// Clear deletes a key. A setter called with an absent value translates to
// this per spec §4.7's invariant.
func (s *ConfigStore) Clear(ctx context.Context, key string) error {
	const q = `DELETE FROM config WHERE key = $1`
	_, err := s.ExecContext(ctx, q, key)
	if err != nil {
		return fmt.Errorf("clear config %q: %w", key, err)
	}
	return nil
}

// GetOrDefault returns the stored value, or fallback if the key is absent.
func (s *ConfigStore) GetOrDefault(ctx context.Context, key, fallback string) (string, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}
