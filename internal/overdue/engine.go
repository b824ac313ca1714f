// Package overdue derives the follow-up work list for a facility: scheduled
// appointments whose date has passed, deduplicated to the latest appointment
// per patient, with reminder suppression and free-text search. The engine
// only reads; it never mutates the record store.
package overdue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-sync/internal/model"
	storage "github.com/jwalitptl/clinic-sync/internal/repository/sqlite"
	"github.com/jwalitptl/clinic-sync/pkg/logger"
)

var dialect = goqu.Dialect("sqlite3")

const yearOverdue = 365 * 24 * time.Hour

// Cursor marks a position in the overdue ordering for load-more pagination.
// Keyset cursors stay stable under concurrent writes where offsets would
// skip or repeat rows.
type Cursor struct {
	ScheduledDate   time.Time
	AppointmentUUID uuid.UUID
}

// Page is one page of search results. Next is nil once the list is
// exhausted.
type Page struct {
	Rows []model.OverdueAppointment
	Next *Cursor
}

type Engine struct {
	store *storage.Store
	log   *logger.Logger
}

func NewEngine(store *storage.Store, log *logger.Logger) *Engine {
	return &Engine{store: store, log: log.WithComponent("overdue")}
}

// latestAppointments ranks every live appointment per patient by creation
// time. Ranking runs over all statuses and facilities: a newer visited
// appointment must supersede an older scheduled one, and an appointment
// created elsewhere still counts as the patient's latest.
func latestAppointments() *goqu.SelectDataset {
	rank := goqu.ROW_NUMBER().Over(
		goqu.W().PartitionBy(goqu.I("a.patient_uuid")).OrderBy(goqu.I("a.created_at").Desc(), goqu.I("a.uuid").Desc()),
	).As("rn")
	return dialect.From(goqu.T("appointments").As("a")).
		Select(goqu.I("a.*"), rank).
		Where(goqu.I("a.deleted_at").IsNull())
}

// base assembles the candidate query: latest appointment per patient, still
// scheduled, past due at the facility, for a live patient.
func base(facilityUUID uuid.UUID, asOf time.Time) *goqu.SelectDataset {
	latestPhone := dialect.From(goqu.T("patient_phone_numbers").As("ph")).
		Select(goqu.I("ph.number")).
		Where(
			goqu.I("ph.patient_uuid").Eq(goqu.I("p.uuid")),
			goqu.I("ph.deleted_at").IsNull(),
		).
		Order(goqu.I("ph.created_at").Desc()).
		Limit(1)

	latestCallOutcome := dialect.From(goqu.T("call_results").As("cr")).
		Select(goqu.I("cr.outcome")).
		Where(goqu.I("cr.appointment_uuid").Eq(goqu.I("l.uuid"))).
		Order(goqu.I("cr.created_at").Desc()).
		Limit(1)

	latestCallAt := dialect.From(goqu.T("call_results").As("cr")).
		Select(goqu.I("cr.created_at")).
		Where(goqu.I("cr.appointment_uuid").Eq(goqu.I("l.uuid"))).
		Order(goqu.I("cr.created_at").Desc()).
		Limit(1)

	return dialect.From(latestAppointments().As("l")).
		Join(goqu.T("patients").As("p"), goqu.On(goqu.I("p.uuid").Eq(goqu.I("l.patient_uuid")))).
		LeftJoin(goqu.T("patient_addresses").As("ad"), goqu.On(goqu.I("ad.patient_uuid").Eq(goqu.I("p.uuid")))).
		Select(
			goqu.I("l.uuid").As("appointment_uuid"),
			goqu.I("p.uuid").As("patient_uuid"),
			goqu.I("p.full_name").As("patient_name"),
			goqu.I("p.gender").As("gender"),
			goqu.I("p.age").As("age"),
			goqu.I("p.date_of_birth").As("date_of_birth"),
			latestPhone.As("phone_number"),
			goqu.I("ad.colony_or_village").As("colony_or_village"),
			goqu.I("l.scheduled_date").As("scheduled_date"),
			goqu.I("l.remind_on").As("remind_on"),
			latestCallOutcome.As("call_outcome"),
			latestCallAt.As("call_result_at"),
		).
		Where(
			goqu.I("l.rn").Eq(1),
			goqu.I("l.status").Eq(string(model.AppointmentStatusScheduled)),
			goqu.I("l.scheduled_date").Lt(asOf),
			goqu.I("l.facility_uuid").Eq(facilityUUID.String()),
			goqu.I("p.deleted_at").IsNull(),
			goqu.I("p.status").Neq(string(model.PatientStatusDead)),
		).
		Order(goqu.I("l.scheduled_date").Asc(), goqu.I("l.uuid").Asc())
}

// List returns appointments overdue by up to a year. Appointments whose
// reminder date is still in the future are held back until it passes.
func (e *Engine) List(ctx context.Context, facilityUUID uuid.UUID, asOf time.Time) ([]model.OverdueAppointment, error) {
	ds := base(facilityUUID, asOf).Where(
		goqu.I("l.scheduled_date").Gte(asOf.Add(-yearOverdue)),
		remindElapsed(asOf),
	)
	rows, err := e.selectRows(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to load overdue list: %w", err)
	}
	return rows, nil
}

// MoreThanAYear returns appointments overdue by more than a year. Reminder
// suppression does not apply here; a patient lost for over a year is
// reported regardless of a pending reminder date.
func (e *Engine) MoreThanAYear(ctx context.Context, facilityUUID uuid.UUID, asOf time.Time) ([]model.OverdueAppointment, error) {
	ds := base(facilityUUID, asOf).Where(
		goqu.I("l.scheduled_date").Lt(asOf.Add(-yearOverdue)),
	)
	rows, err := e.selectRows(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("failed to load year-overdue list: %w", err)
	}
	return rows, nil
}

// Search filters the overdue list by free-text tokens matched
// case-insensitively against the patient name and the address
// colony/village, paginated by keyset cursor. A row matches when any token
// matches either field.
func (e *Engine) Search(ctx context.Context, facilityUUID uuid.UUID, asOf time.Time, tokens []string, cursor *Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 20
	}
	ds := base(facilityUUID, asOf).Where(remindElapsed(asOf))

	if match := tokenMatch(tokens); match != nil {
		ds = ds.Where(match)
	}
	if cursor != nil {
		ds = ds.Where(goqu.Or(
			goqu.I("l.scheduled_date").Gt(cursor.ScheduledDate),
			goqu.And(
				goqu.I("l.scheduled_date").Eq(cursor.ScheduledDate),
				goqu.I("l.uuid").Gt(cursor.AppointmentUUID.String()),
			),
		))
	}

	rows, err := e.selectRows(ctx, ds.Limit(uint(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to search overdue list: %w", err)
	}

	page := &Page{Rows: rows}
	if len(rows) > limit {
		page.Rows = rows[:limit]
		last := page.Rows[limit-1]
		page.Next = &Cursor{
			ScheduledDate:   last.ScheduledDate,
			AppointmentUUID: last.AppointmentUUID,
		}
	}
	return page, nil
}

func remindElapsed(asOf time.Time) goqu.Expression {
	return goqu.Or(
		goqu.I("l.remind_on").IsNull(),
		goqu.I("l.remind_on").Lte(asOf),
	)
}

func tokenMatch(tokens []string) goqu.Expression {
	var exprs []goqu.Expression
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		pattern := "%" + escapeLike(token) + "%"
		exprs = append(exprs,
			goqu.L("LOWER(p.full_name) LIKE ? ESCAPE '\\'", pattern),
			goqu.L("LOWER(ad.colony_or_village) LIKE ? ESCAPE '\\'", pattern),
		)
	}
	if len(exprs) == 0 {
		return nil
	}
	return goqu.Or(exprs...)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (e *Engine) selectRows(ctx context.Context, ds *goqu.SelectDataset) ([]model.OverdueAppointment, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	var rows []model.OverdueAppointment
	if err := e.store.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
