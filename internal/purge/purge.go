// Package purge hard-deletes records the device no longer needs to hold:
// soft-deleted records the server has acknowledged, terminal appointments,
// orphaned clinical records, and patients outside the device's sync group.
// Deletion is planned in phases: doomed parent ids are computed first, then
// dependents are removed bottom-up inside a single transaction. A record
// whose sync status is not DONE is never deleted by any rule.
package purge

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-sync/internal/model"
	storage "github.com/jwalitptl/clinic-sync/internal/repository/sqlite"
	"github.com/jwalitptl/clinic-sync/pkg/clock"
	apperrors "github.com/jwalitptl/clinic-sync/pkg/errors"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
	"github.com/jwalitptl/clinic-sync/pkg/metrics"
)

var dialect = goqu.Dialect("sqlite3")

const (
	tablePatients        = "patients"
	tableAddresses       = "patient_addresses"
	tablePhoneNumbers    = "patient_phone_numbers"
	tableBusinessIDs     = "business_ids"
	tableBloodPressures  = "blood_pressure_measurements"
	tableBloodSugars     = "blood_sugar_measurements"
	tablePrescribedDrugs = "prescribed_drugs"
	tableHistories       = "medical_histories"
	tableAppointments    = "appointments"
	tableCallResults     = "call_results"
)

// patientChildren lists every table holding rows owned by a patient, in the
// order they are deleted (children before anything that references them).
var patientChildren = []string{
	tableCallResults,
	tableAppointments,
	tableBloodPressures,
	tableBloodSugars,
	tablePrescribedDrugs,
	tableHistories,
	tableAddresses,
	tablePhoneNumbers,
	tableBusinessIDs,
}

type Purger struct {
	store   *storage.Store
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewPurger(store *storage.Store, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Purger {
	return &Purger{
		store:   store,
		clock:   clk,
		metrics: m,
		log:     log.WithComponent("purge"),
	}
}

// Run executes the retention purge pass as of the given instant:
//
//   - patients that are soft-deleted, acknowledged by the server, and past
//     their retain-until instant are removed together with their records
//   - soft-deleted, acknowledged clinical records are removed regardless of
//     any retention window
//   - acknowledged appointments in a terminal state are removed even without
//     a tombstone; unrecognised statuses are left alone
//   - acknowledged records whose patient no longer exists are removed
//
// The whole pass runs in one transaction and is idempotent.
func (p *Purger) Run(ctx context.Context, asOf time.Time) error {
	start := p.clock.Now()
	defer func() {
		p.metrics.PurgeLatency.Observe(p.clock.Now().Sub(start).Seconds())
	}()

	doomed, err := p.patientsPastRetention(ctx, asOf)
	if err != nil {
		return fmt.Errorf("failed to plan retention purge: %w", err)
	}

	err = p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.deletePatientChain(ctx, tx, doomed, "retention"); err != nil {
			return err
		}
		if err := p.deleteTombstoned(ctx, tx); err != nil {
			return err
		}
		if err := p.deleteTerminalAppointments(ctx, tx); err != nil {
			return err
		}
		return p.deleteOrphans(ctx, tx)
	})
	if err != nil {
		return apperrors.NewPurge("retention", err)
	}

	p.log.Info().Int("patients", len(doomed)).Time("as_of", asOf).Msg("retention purge complete")
	p.publishAll()
	return nil
}

// DeletePatientsOutsideSyncGroup removes every acknowledged patient whose
// registration and assigned facilities both fall outside the given facility's
// sync group. A patient is kept when they still have a scheduled appointment
// at an in-group facility, or when any record in their chain has unsynced
// local changes.
func (p *Purger) DeletePatientsOutsideSyncGroup(ctx context.Context, facility model.Facility) error {
	start := p.clock.Now()
	defer func() {
		p.metrics.PurgeLatency.Observe(p.clock.Now().Sub(start).Seconds())
	}()

	group, err := p.facilitiesInGroup(ctx, facility)
	if err != nil {
		return fmt.Errorf("failed to resolve sync group: %w", err)
	}

	doomed, err := p.patientsOutsideGroup(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to plan sync group purge: %w", err)
	}

	err = p.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.deletePatientChain(ctx, tx, doomed, "sync_group"); err != nil {
			return err
		}
		return p.deleteOrphans(ctx, tx)
	})
	if err != nil {
		return apperrors.NewPurge("sync_group", err)
	}

	p.log.Info().
		Int("patients", len(doomed)).
		Str("facility", facility.UUID.String()).
		Str("sync_group", facility.SyncGroupID).
		Msg("sync group purge complete")
	p.publishAll()
	return nil
}

// facilitiesInGroup returns the uuids of every facility sharing the given
// facility's sync group. A facility without a sync group is a group of one.
func (p *Purger) facilitiesInGroup(ctx context.Context, facility model.Facility) ([]string, error) {
	if facility.SyncGroupID == "" {
		return []string{facility.UUID.String()}, nil
	}
	query, args, err := dialect.From("facilities").
		Select("uuid").
		Where(goqu.Ex{"sync_group": facility.SyncGroupID}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var uuids []string
	if err := p.store.DB().SelectContext(ctx, &uuids, query, args...); err != nil {
		return nil, err
	}
	return uuids, nil
}

// patientsPastRetention computes the doomed set for the retention rule.
func (p *Purger) patientsPastRetention(ctx context.Context, asOf time.Time) ([]string, error) {
	ds := dialect.From(tablePatients).
		Select("uuid").
		Where(
			goqu.C("deleted_at").IsNotNull(),
			goqu.C("sync_status").Eq(string(model.SyncStatusDone)),
			goqu.C("retain_until").IsNotNull(),
			goqu.C("retain_until").Lt(asOf),
		).
		Where(noDirtyDescendants()...)
	return p.selectIDs(ctx, ds)
}

// patientsOutsideGroup computes the doomed set for the sync group rule.
func (p *Purger) patientsOutsideGroup(ctx context.Context, group []string) ([]string, error) {
	inGroupAppointments := dialect.From(goqu.T(tableAppointments).As("a")).
		Select(goqu.V(1)).
		Where(
			goqu.I("a.patient_uuid").Eq(goqu.I("patients.uuid")),
			goqu.I("a.deleted_at").IsNull(),
			goqu.I("a.status").Eq(string(model.AppointmentStatusScheduled)),
			goqu.I("a.facility_uuid").In(group),
		)

	ds := dialect.From(tablePatients).
		Select("uuid").
		Where(
			goqu.C("sync_status").Eq(string(model.SyncStatusDone)),
			goqu.C("registration_facility_uuid").NotIn(group),
			goqu.Or(
				goqu.C("assigned_facility_uuid").IsNull(),
				goqu.C("assigned_facility_uuid").NotIn(group),
			),
			goqu.L("NOT EXISTS ?", inGroupAppointments),
		).
		Where(noDirtyDescendants()...)
	return p.selectIDs(ctx, ds)
}

// noDirtyDescendants builds one NOT EXISTS clause per dependent table, so a
// patient with any unsynced record anywhere in its chain is never doomed.
func noDirtyDescendants() []goqu.Expression {
	done := string(model.SyncStatusDone)
	exprs := make([]goqu.Expression, 0, len(patientChildren))
	for _, table := range patientChildren {
		if table == tableCallResults {
			sub := dialect.From(goqu.T(tableCallResults).As("cr")).
				Select(goqu.V(1)).
				Join(goqu.T(tableAppointments).As("ca"), goqu.On(goqu.I("cr.appointment_uuid").Eq(goqu.I("ca.uuid")))).
				Where(
					goqu.I("ca.patient_uuid").Eq(goqu.I("patients.uuid")),
					goqu.I("cr.sync_status").Neq(done),
				)
			exprs = append(exprs, goqu.L("NOT EXISTS ?", sub))
			continue
		}
		sub := dialect.From(goqu.T(table).As("d")).
			Select(goqu.V(1)).
			Where(
				goqu.I("d.patient_uuid").Eq(goqu.I("patients.uuid")),
				goqu.I("d.sync_status").Neq(done),
			)
		exprs = append(exprs, goqu.L("NOT EXISTS ?", sub))
	}
	return exprs
}

func (p *Purger) selectIDs(ctx context.Context, ds *goqu.SelectDataset) ([]string, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := p.store.DB().SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, err
	}
	return ids, nil
}

// deletePatientChain removes the doomed patients and their records, children
// first. Every delete keeps the DONE guard; an unsynced row is skipped even
// if the plan somehow raced a concurrent local edit.
func (p *Purger) deletePatientChain(ctx context.Context, tx *sqlx.Tx, doomed []string, rule string) error {
	if len(doomed) == 0 {
		return nil
	}
	done := string(model.SyncStatusDone)

	for _, table := range patientChildren {
		var ds *goqu.DeleteDataset
		if table == tableCallResults {
			owned := dialect.From(goqu.T(tableAppointments).As("ca")).
				Select("ca.uuid").
				Where(goqu.I("ca.patient_uuid").In(doomed))
			ds = dialect.Delete(tableCallResults).Where(
				goqu.C("appointment_uuid").In(owned),
				goqu.C("sync_status").Eq(done),
			)
		} else {
			ds = dialect.Delete(table).Where(
				goqu.C("patient_uuid").In(doomed),
				goqu.C("sync_status").Eq(done),
			)
		}
		if err := p.execDelete(ctx, tx, ds, table, rule); err != nil {
			return err
		}
	}

	ds := dialect.Delete(tablePatients).Where(
		goqu.C("uuid").In(doomed),
		goqu.C("sync_status").Eq(done),
	)
	return p.execDelete(ctx, tx, ds, tablePatients, rule)
}

// deleteTombstoned removes soft-deleted, acknowledged clinical records. No
// retention window applies below the patient level.
func (p *Purger) deleteTombstoned(ctx context.Context, tx *sqlx.Tx) error {
	done := string(model.SyncStatusDone)
	for _, table := range []string{tableBloodPressures, tableBloodSugars, tablePrescribedDrugs, tableHistories} {
		ds := dialect.Delete(table).Where(
			goqu.C("deleted_at").IsNotNull(),
			goqu.C("sync_status").Eq(done),
		)
		if err := p.execDelete(ctx, tx, ds, table, "tombstone"); err != nil {
			return err
		}
	}
	return nil
}

// deleteTerminalAppointments removes acknowledged visited and cancelled
// appointments whether or not they carry a tombstone. Their call results go
// first. Scheduled and unrecognised statuses are untouched.
func (p *Purger) deleteTerminalAppointments(ctx context.Context, tx *sqlx.Tx) error {
	done := string(model.SyncStatusDone)
	terminal := []string{
		string(model.AppointmentStatusVisited),
		string(model.AppointmentStatusCancelled),
	}

	terminalAppointments := dialect.From(goqu.T(tableAppointments).As("ta")).
		Select("ta.uuid").
		Where(
			goqu.I("ta.status").In(terminal),
			goqu.I("ta.sync_status").Eq(done),
		)
	ds := dialect.Delete(tableCallResults).Where(
		goqu.C("appointment_uuid").In(terminalAppointments),
		goqu.C("sync_status").Eq(done),
	)
	if err := p.execDelete(ctx, tx, ds, tableCallResults, "terminal_appointment"); err != nil {
		return err
	}

	ds = dialect.Delete(tableAppointments).Where(
		goqu.C("status").In(terminal),
		goqu.C("sync_status").Eq(done),
	)
	return p.execDelete(ctx, tx, ds, tableAppointments, "terminal_appointment")
}

// deleteOrphans removes acknowledged records whose parent row no longer
// exists. An unsynced orphan survives until the server has acknowledged it.
func (p *Purger) deleteOrphans(ctx context.Context, tx *sqlx.Tx) error {
	done := string(model.SyncStatusDone)

	livingAppointments := dialect.From(goqu.T(tableAppointments).As("pa")).
		Select(goqu.V(1)).
		Where(goqu.I("pa.uuid").Eq(goqu.I("call_results.appointment_uuid")))
	ds := dialect.Delete(tableCallResults).Where(
		goqu.L("NOT EXISTS ?", livingAppointments),
		goqu.C("sync_status").Eq(done),
	)
	if err := p.execDelete(ctx, tx, ds, tableCallResults, "orphan"); err != nil {
		return err
	}

	for _, table := range patientChildren[1:] {
		livingPatient := dialect.From(goqu.T(tablePatients).As("pp")).
			Select(goqu.V(1)).
			Where(goqu.I("pp.uuid").Eq(goqu.I(table + ".patient_uuid")))
		ds := dialect.Delete(table).Where(
			goqu.L("NOT EXISTS ?", livingPatient),
			goqu.C("sync_status").Eq(done),
		)
		if err := p.execDelete(ctx, tx, ds, table, "orphan"); err != nil {
			return err
		}
	}
	return nil
}

func (p *Purger) execDelete(ctx context.Context, tx *sqlx.Tx, ds *goqu.DeleteDataset, table, rule string) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build %s delete for %s: %w", rule, table, err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s rows for %s: %w", table, rule, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		p.metrics.RecordsPurged.WithLabelValues(table, rule).Add(float64(n))
	}
	return nil
}

func (p *Purger) publishAll() {
	tables := append([]string{tablePatients}, patientChildren...)
	p.store.Bus().Publish(tables...)
}
