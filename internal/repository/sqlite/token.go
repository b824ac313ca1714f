package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-sync/internal/repository"
)

type tokenRepository struct {
	store *Store
}

// NewTokenRepository persists the per-resource pull cursor. The token is
// opaque server state; an empty string means "resync from epoch".
func NewTokenRepository(store *Store) repository.TokenRepository {
	return &tokenRepository{store: store}
}

func (r *tokenRepository) Get(ctx context.Context, resource string) (string, error) {
	var token string
	err := r.store.db.GetContext(ctx, &token, "SELECT token FROM sync_tokens WHERE resource = ?", resource)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read pull token for %s: %w", resource, err)
	}
	return token, nil
}

func (r *tokenRepository) Set(ctx context.Context, resource, token string, updatedAt time.Time) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO sync_tokens (resource, token, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(resource) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		resource, token, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to persist pull token for %s: %w", resource, err)
	}
	return nil
}

func (r *tokenRepository) Delete(ctx context.Context, resource string) error {
	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM sync_tokens WHERE resource = ?", resource); err != nil {
		return fmt.Errorf("failed to delete pull token for %s: %w", resource, err)
	}
	return nil
}
