package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/repository"
	apperrors "github.com/jwalitptl/clinic-sync/pkg/errors"
)

const (
	tableUsers          = "users"
	tableUserFacilities = "user_facilities"
)

type userRepository struct {
	tableOps
}

func NewUserRepository(store *Store) repository.UserRepository {
	return &userRepository{tableOps: tableOps{store: store, table: tableUsers}}
}

func (r *userRepository) Save(ctx context.Context, user *model.User) error {
	now := r.store.clock.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := r.store.db.NamedExecContext(ctx, `
		INSERT INTO users (uuid, full_name, phone_number, pin_digest, status, logged_in_status, created_at, updated_at)
		VALUES (:uuid, :full_name, :phone_number, :pin_digest, :status, :logged_in_status, :created_at, :updated_at)
		ON CONFLICT(uuid) DO UPDATE SET
			full_name = excluded.full_name,
			phone_number = excluded.phone_number,
			pin_digest = excluded.pin_digest,
			status = excluded.status,
			logged_in_status = excluded.logged_in_status,
			updated_at = excluded.updated_at`, user)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.UUID, err)
	}
	r.store.bus.Publish(tableUsers)
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	err := r.store.db.GetContext(ctx, &u, "SELECT * FROM users WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (r *userRepository) CurrentFacilityUUID(ctx context.Context, userUUID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.store.db.GetContext(ctx, &id,
		"SELECT facility_uuid FROM user_facilities WHERE user_uuid = ? AND is_current_facility = 1", userUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, apperrors.NewNotFound("current facility", err)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get current facility: %w", err)
	}
	return id, nil
}

// SetCurrentFacility records a facility switch. Exactly one mapping row per
// user carries the current flag afterwards.
func (r *userRepository) SetCurrentFacility(ctx context.Context, userUUID, facilityUUID uuid.UUID) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE user_facilities SET is_current_facility = 0 WHERE user_uuid = ?", userUUID); err != nil {
			return fmt.Errorf("failed to clear current facility: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_facilities (user_uuid, facility_uuid, is_current_facility)
			VALUES (?, ?, 1)
			ON CONFLICT(user_uuid, facility_uuid) DO UPDATE SET is_current_facility = 1`,
			userUUID, facilityUUID); err != nil {
			return fmt.Errorf("failed to set current facility: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableUserFacilities)
	return nil
}
