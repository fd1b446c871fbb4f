package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
)

// TransitionKind classifies what a recorded event did to the day's state.
type TransitionKind string

const (
	// Arrived: first event of the day created the record.
	Arrived TransitionKind = "arrived"
	// DepartedFirst: second event set the departure time.
	DepartedFirst TransitionKind = "departed_first"
	// DepartedUpdated: a later event overwrote the departure time.
	DepartedUpdated TransitionKind = "departed_updated"
)

// ErrDuplicateDay is returned by Store.InsertDay when a row for the same
// (identity, day) key already exists. The ledger recovers by retrying the
// event as a departure update; callers never see this error.
var ErrDuplicateDay = errors.New("attendance day already exists")

// Transition is the result of applying one recognition event to the ledger.
// PriorDeparture is set only for DepartedUpdated and carries the overwritten
// value for messaging.
type Transition struct {
	Kind           TransitionKind
	Day            *models.AttendanceDay
	PriorDeparture *time.Time
}

// Store is the persistence boundary for attendance days. InsertDay must be
// atomic against concurrent inserts for the same key (unique constraint on
// (identity_id, day)); SetDeparture must report the overwritten value.
type Store interface {
	GetDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error)
	InsertDay(ctx context.Context, identityID uuid.UUID, day, arrival time.Time) (*models.AttendanceDay, error)
	SetDeparture(ctx context.Context, identityID uuid.UUID, day, departure time.Time) (*models.AttendanceDay, *time.Time, error)
}

// Ledger owns the per-(identity, day) check-in/check-out state machine:
// NoRecord -> ArrivedOnly -> ArrivedAndDeparted, where ArrivedAndDeparted
// accepts unbounded further events that each overwrite the departure time.
// The system tracks latest known departure, not multiple shifts.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetOrNone returns the day's record, or nil if no event has been recorded.
func (l *Ledger) GetOrNone(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error) {
	return l.store.GetDay(ctx, identityID, day)
}

// RecordEvent applies one recognition event. The first event of the day
// creates the record with the arrival time; every subsequent event
// overwrites the departure time. A uniqueness conflict on insert means a
// concurrent event just created the record, so the event is retried as a
// departure update rather than surfaced as an error.
func (l *Ledger) RecordEvent(ctx context.Context, identityID uuid.UUID, day, eventTime time.Time) (*Transition, error) {
	existing, err := l.store.GetDay(ctx, identityID, day)
	if err != nil {
		return nil, fmt.Errorf("get attendance day: %w", err)
	}

	if existing == nil {
		rec, err := l.store.InsertDay(ctx, identityID, day, eventTime)
		if err == nil {
			observability.AttendanceTransitions.WithLabelValues(string(Arrived)).Inc()
			return &Transition{Kind: Arrived, Day: rec}, nil
		}
		if !errors.Is(err, ErrDuplicateDay) {
			return nil, fmt.Errorf("insert attendance day: %w", err)
		}
		// Lost the race to a concurrent first event for this key.
		observability.InsertConflicts.Inc()
	}

	rec, prior, err := l.store.SetDeparture(ctx, identityID, day, eventTime)
	if err != nil {
		return nil, fmt.Errorf("set departure: %w", err)
	}

	if prior == nil {
		observability.AttendanceTransitions.WithLabelValues(string(DepartedFirst)).Inc()
		return &Transition{Kind: DepartedFirst, Day: rec}, nil
	}
	observability.AttendanceTransitions.WithLabelValues(string(DepartedUpdated)).Inc()
	return &Transition{Kind: DepartedUpdated, Day: rec, PriorDeparture: prior}, nil
}

// DayOf truncates t to its calendar date in loc. Days are keyed as
// midnight UTC of that date so two events in the same local day always
// produce equal keys regardless of the timestamps' locations.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
