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
)

const tableFacilities = "facilities"

type facilityRepository struct {
	tableOps
}

func NewFacilityRepository(store *Store) repository.FacilityRepository {
	return &facilityRepository{tableOps: tableOps{store: store, table: tableFacilities}}
}

const facilityUpsert = `
	INSERT INTO facilities (uuid, name, facility_type, street_address, district, state,
		country, pin_code, protocol_uuid, group_uuid, latitude, longitude, sync_group,
		created_at, updated_at, deleted_at, sync_status)
	VALUES (:uuid, :name, :facility_type, :street_address, :district, :state,
		:country, :pin_code, :protocol_uuid, :group_uuid, :latitude, :longitude, :sync_group,
		:created_at, :updated_at, :deleted_at, :sync_status)
	ON CONFLICT(uuid) DO UPDATE SET
		name = excluded.name,
		facility_type = excluded.facility_type,
		street_address = excluded.street_address,
		district = excluded.district,
		state = excluded.state,
		country = excluded.country,
		pin_code = excluded.pin_code,
		protocol_uuid = excluded.protocol_uuid,
		group_uuid = excluded.group_uuid,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		sync_group = excluded.sync_group,
		updated_at = excluded.updated_at,
		deleted_at = excluded.deleted_at,
		sync_status = excluded.sync_status`

// Merge is the only write path: facilities are server master data.
func (r *facilityRepository) Merge(ctx context.Context, facilities []model.Facility) error {
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range facilities {
			stampMerged(&facilities[i].Syncable)
			if _, err := tx.NamedExecContext(ctx, facilityUpsert, facilities[i]); err != nil {
				return fmt.Errorf("failed to merge facility %s: %w", facilities[i].UUID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.store.bus.Publish(tableFacilities)
	return nil
}

func (r *facilityRepository) Get(ctx context.Context, id uuid.UUID) (*model.Facility, error) {
	var f model.Facility
	err := r.store.db.GetContext(ctx, &f, "SELECT * FROM facilities WHERE uuid = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("facility %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return &f, nil
}

func (r *facilityRepository) List(ctx context.Context) ([]model.Facility, error) {
	var out []model.Facility
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM facilities WHERE deleted_at IS NULL ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}
	return out, nil
}

func (r *facilityRepository) WithSyncGroup(ctx context.Context, syncGroup string) ([]model.Facility, error) {
	var out []model.Facility
	if err := r.store.db.SelectContext(ctx, &out,
		"SELECT * FROM facilities WHERE sync_group = ? AND deleted_at IS NULL", syncGroup); err != nil {
		return nil, fmt.Errorf("failed to list facilities in sync group %q: %w", syncGroup, err)
	}
	return out, nil
}
