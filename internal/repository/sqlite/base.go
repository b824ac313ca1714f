// Package sqlite implements the record store on the on-device database.
// Every multi-row mutation runs inside a single transaction, and every
// committed write publishes an invalidation on the change bus.
package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/internal/model"
	"github.com/jwalitptl/clinic-sync/internal/notify"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
)

// Store bundles the shared dependencies of all repositories.
type Store struct {
	db    *sqlx.DB
	bus   *notify.Bus
	clock clock.Clock
}

func NewStore(db *sqlx.DB, bus *notify.Bus, clk clock.Clock) *Store {
	return &Store{db: db, bus: bus, clock: clk}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Bus() *notify.Bus { return s.bus }

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// tableOps provides the entity-agnostic sync bookkeeping every repository
// needs. The table name is a package-internal constant, never user input.
type tableOps struct {
	store *Store
	table string
}

func (t tableOps) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.table)
	if err := t.store.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.table, err)
	}
	return n, nil
}

// ObserveCount emits the current row count and re-emits after every write to
// the table. The cancel function releases the subscription.
func (t tableOps) ObserveCount(ctx context.Context) (<-chan int, func()) {
	changes, unsubscribe := t.store.bus.Subscribe(t.table)
	out := make(chan int, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		emit := func() {
			n, err := t.Count(ctx)
			if err != nil {
				return
			}
			select {
			case out <- n:
			case <-ctx.Done():
			case <-done:
			}
		}
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-changes:
				emit()
			}
		}
	}()

	cancel := func() {
		unsubscribe()
		close(done)
	}
	return out, cancel
}

// UpdateSyncStatus moves the listed records from one status to another and
// reports how many actually moved. Records no longer in the from-status are
// skipped, which is what keeps a record dirtied mid-push out of DONE.
func (t tableOps) UpdateSyncStatus(ctx context.Context, ids []uuid.UUID, from, to model.SyncStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		fmt.Sprintf("UPDATE %s SET sync_status = ? WHERE sync_status = ? AND uuid IN (?)", t.table),
		to, from, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to build sync status update for %s: %w", t.table, err)
	}
	res, err := t.store.db.ExecContext(ctx, t.store.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update sync status on %s: %w", t.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	t.store.bus.Publish(t.table)
	return n, nil
}
