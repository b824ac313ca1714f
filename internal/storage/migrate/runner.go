// Package migrate brings the on-device schema from any historical version to
// the current one. Migrations are identified solely by their (from, to)
// version pair and run in strict ascending order with no gaps; each one
// executes inside a single transaction so a failure leaves the database at
// its original version.
package migrate

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

// EarliestVersion is the oldest on-disk schema this build can upgrade. A
// fresh database is bootstrapped directly at this version and then migrated
// forward like any other device.
const EarliestVersion = 6

// Migration is one step of the schema history. Apply must only use the
// transaction it is given; it must not commit, roll back, or touch the
// connection directly.
type Migration struct {
	From  int
	To    int
	Name  string
	Apply func(ctx context.Context, tx *sqlx.Tx) error
}

// Runner applies the registered migration sequence.
type Runner struct {
	db         *sqlx.DB
	log        *logger.Logger
	migrations []Migration
}

// NewRunner validates that the sequence starts at EarliestVersion, ascends
// one version at a time, and has no gaps or duplicates.
func NewRunner(db *sqlx.DB, log *logger.Logger, migrations []Migration) (*Runner, error) {
	expected := EarliestVersion
	for _, m := range migrations {
		if m.Apply == nil {
			return nil, fmt.Errorf("migration %d->%d has no apply function", m.From, m.To)
		}
		if m.To != m.From+1 {
			return nil, fmt.Errorf("migration %d->%d must advance exactly one version", m.From, m.To)
		}
		if m.From != expected {
			return nil, fmt.Errorf("migration sequence has a gap: expected from-version %d, got %d", expected, m.From)
		}
		expected = m.To
	}
	return &Runner{db: db, log: log, migrations: migrations}, nil
}

// LatestVersion is the version the full sequence migrates to.
func (r *Runner) LatestVersion() int {
	if len(r.migrations) == 0 {
		return EarliestVersion
	}
	return r.migrations[len(r.migrations)-1].To
}

// Version reads the schema version stamped on the database file.
func (r *Runner) Version(ctx context.Context) (int, error) {
	var v int
	if err := r.db.GetContext(ctx, &v, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Migrate upgrades the database to the latest registered version. A fresh
// database is bootstrapped first. Any failure aborts the upgrade with the
// database left at the last fully-applied version; callers must treat that
// as fatal rather than proceed on a partially-upgraded schema.
func (r *Runner) Migrate(ctx context.Context) error {
	return r.MigrateTo(ctx, r.LatestVersion())
}

// MigrateTo upgrades the database to the given target version.
func (r *Runner) MigrateTo(ctx context.Context, target int) error {
	version, err := r.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		if err := r.bootstrap(ctx); err != nil {
			return err
		}
		version = EarliestVersion
	}
	if version < EarliestVersion {
		return fmt.Errorf("database schema version %d predates the earliest supported version %d", version, EarliestVersion)
	}
	if target > r.LatestVersion() {
		return fmt.Errorf("target version %d is beyond the registered sequence (latest %d)", target, r.LatestVersion())
	}
	if version > target {
		return fmt.Errorf("database schema version %d is newer than target %d", version, target)
	}

	for _, m := range r.migrations {
		if m.From < version {
			continue
		}
		if m.From >= target {
			break
		}
		if m.From != version {
			return fmt.Errorf("migration sequence is missing step %d->%d", version, version+1)
		}
		if err := r.applyOne(ctx, m); err != nil {
			return fmt.Errorf("migration %d->%d (%s) failed: %w", m.From, m.To, m.Name, err)
		}
		version = m.To
		r.log.Info().Int("from", m.From).Int("to", m.To).Str("name", m.Name).Msg("applied schema migration")
	}
	return nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Some steps momentarily break references while copying rows between
	// tables; enforcement is deferred so only the committed state counts.
	if _, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to defer foreign keys: %w", err)
	}
	if err := m.Apply(ctx, tx); err != nil {
		return err
	}
	// PRAGMA does not take bind parameters; the version is an int from the
	// validated sequence, never external input.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.To)); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return tx.Commit()
}

func (r *Runner) bootstrap(ctx context.Context) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, baselineSchema); err != nil {
		return fmt.Errorf("failed to create baseline schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", EarliestVersion)); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit baseline schema: %w", err)
	}
	r.log.Info().Int("version", EarliestVersion).Msg("bootstrapped fresh database")
	return nil
}
