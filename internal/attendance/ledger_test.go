package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/attend/internal/models"
)

// memStore is an in-memory attendance.Store with the same atomicity
// guarantees the Postgres implementation gets from its unique constraint.
type memStore struct {
	mu   sync.Mutex
	days map[string]*models.AttendanceDay
}

func newMemStore() *memStore {
	return &memStore{days: make(map[string]*models.AttendanceDay)}
}

func dayKey(identityID uuid.UUID, day time.Time) string {
	return identityID.String() + "/" + day.Format("2006-01-02")
}

func (m *memStore) GetDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.days[dayKey(identityID, day)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) InsertDay(ctx context.Context, identityID uuid.UUID, day, arrival time.Time) (*models.AttendanceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dayKey(identityID, day)
	if _, ok := m.days[key]; ok {
		return nil, ErrDuplicateDay
	}
	rec := &models.AttendanceDay{
		ID:          uuid.New(),
		IdentityID:  identityID,
		Day:         day,
		ArrivalTime: arrival,
	}
	m.days[key] = rec
	cp := *rec
	return &cp, nil
}

func (m *memStore) SetDeparture(ctx context.Context, identityID uuid.UUID, day, departure time.Time) (*models.AttendanceDay, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.days[dayKey(identityID, day)]
	if !ok {
		return nil, nil, context.Canceled // never reached in these tests
	}
	prior := rec.DepartureTime
	d := departure
	rec.DepartureTime = &d
	cp := *rec
	return &cp, prior, nil
}

// racingStore simulates losing the insert race: GetDay reports no record,
// but another event created one before InsertDay ran.
type racingStore struct {
	*memStore
	hideFirstGet bool
}

func (r *racingStore) GetDay(ctx context.Context, identityID uuid.UUID, day time.Time) (*models.AttendanceDay, error) {
	if r.hideFirstGet {
		r.hideFirstGet = false
		return nil, nil
	}
	return r.memStore.GetDay(ctx, identityID, day)
}

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02T15:04", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return parsed
}

func TestLedgerFullDaySequence(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()
	bob := uuid.New()
	day := ts(t, "2024-01-10T00:00")

	// First event of the day: arrival.
	tr, err := ledger.RecordEvent(ctx, bob, day, ts(t, "2024-01-10T09:00"))
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if tr.Kind != Arrived {
		t.Fatalf("first event kind = %q; want %q", tr.Kind, Arrived)
	}
	if !tr.Day.ArrivalTime.Equal(ts(t, "2024-01-10T09:00")) {
		t.Errorf("arrival = %v; want 09:00", tr.Day.ArrivalTime)
	}

	// Second event: first departure.
	tr, err = ledger.RecordEvent(ctx, bob, day, ts(t, "2024-01-10T18:00"))
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if tr.Kind != DepartedFirst {
		t.Fatalf("second event kind = %q; want %q", tr.Kind, DepartedFirst)
	}
	if tr.PriorDeparture != nil {
		t.Errorf("first departure must have no prior, got %v", tr.PriorDeparture)
	}

	// Third event: departure overwrite carrying the prior value.
	tr, err = ledger.RecordEvent(ctx, bob, day, ts(t, "2024-01-10T18:30"))
	if err != nil {
		t.Fatalf("third event: %v", err)
	}
	if tr.Kind != DepartedUpdated {
		t.Fatalf("third event kind = %q; want %q", tr.Kind, DepartedUpdated)
	}
	if tr.PriorDeparture == nil || !tr.PriorDeparture.Equal(ts(t, "2024-01-10T18:00")) {
		t.Errorf("prior departure = %v; want 18:00", tr.PriorDeparture)
	}
	if !tr.Day.DepartureTime.Equal(ts(t, "2024-01-10T18:30")) {
		t.Errorf("departure = %v; want 18:30", tr.Day.DepartureTime)
	}

	// Arrival is never overwritten.
	if !tr.Day.ArrivalTime.Equal(ts(t, "2024-01-10T09:00")) {
		t.Errorf("arrival changed to %v", tr.Day.ArrivalTime)
	}
}

func TestLedgerAcceptsUnboundedDepartureOverwrites(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()
	id := uuid.New()
	day := ts(t, "2024-01-10T00:00")

	ledger.RecordEvent(ctx, id, day, ts(t, "2024-01-10T08:00"))
	ledger.RecordEvent(ctx, id, day, ts(t, "2024-01-10T12:00"))

	last := ts(t, "2024-01-10T12:00")
	for _, hour := range []string{"2024-01-10T14:00", "2024-01-10T16:00", "2024-01-10T18:00"} {
		tr, err := ledger.RecordEvent(ctx, id, day, ts(t, hour))
		if err != nil {
			t.Fatalf("event at %s: %v", hour, err)
		}
		if tr.Kind != DepartedUpdated {
			t.Fatalf("kind at %s = %q; want %q", hour, tr.Kind, DepartedUpdated)
		}
		if tr.PriorDeparture == nil || !tr.PriorDeparture.Equal(last) {
			t.Errorf("prior at %s = %v; want %v", hour, tr.PriorDeparture, last)
		}
		last = ts(t, hour)
	}

	rec, err := ledger.GetOrNone(ctx, id, day)
	if err != nil || rec == nil {
		t.Fatalf("GetOrNone: rec=%v err=%v", rec, err)
	}
	if !rec.DepartureTime.Equal(last) {
		t.Errorf("final departure = %v; want %v", rec.DepartureTime, last)
	}
}

func TestLedgerDayIsolation(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()
	id := uuid.New()

	day10 := ts(t, "2024-01-10T00:00")
	day11 := ts(t, "2024-01-11T00:00")

	ledger.RecordEvent(ctx, id, day10, ts(t, "2024-01-10T09:00"))
	ledger.RecordEvent(ctx, id, day10, ts(t, "2024-01-10T18:00"))

	tr, err := ledger.RecordEvent(ctx, id, day11, ts(t, "2024-01-11T09:05"))
	if err != nil {
		t.Fatalf("next day event: %v", err)
	}
	if tr.Kind != Arrived {
		t.Fatalf("next day kind = %q; want %q", tr.Kind, Arrived)
	}

	// Day 10 unchanged.
	rec, _ := ledger.GetOrNone(ctx, id, day10)
	if !rec.DepartureTime.Equal(ts(t, "2024-01-10T18:00")) {
		t.Errorf("day 10 departure changed: %v", rec.DepartureTime)
	}
}

func TestLedgerRecoversFromInsertConflict(t *testing.T) {
	// Two near-simultaneous camera triggers: this event read "no record",
	// but the concurrent one inserted first. The conflict must convert
	// into a departure update, not an error.
	mem := newMemStore()
	id := uuid.New()
	day := ts(t, "2024-01-10T00:00")

	// The concurrent winner's record.
	if _, err := mem.InsertDay(context.Background(), id, day, ts(t, "2024-01-10T09:00")); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	ledger := NewLedger(&racingStore{memStore: mem, hideFirstGet: true})
	tr, err := ledger.RecordEvent(context.Background(), id, day, ts(t, "2024-01-10T09:00"))
	if err != nil {
		t.Fatalf("conflicting event surfaced an error: %v", err)
	}
	if tr.Kind != DepartedFirst {
		t.Fatalf("kind = %q; want %q", tr.Kind, DepartedFirst)
	}
}

func TestGetOrNone(t *testing.T) {
	ledger := NewLedger(newMemStore())
	ctx := context.Background()
	id := uuid.New()
	day := ts(t, "2024-01-10T00:00")

	rec, err := ledger.GetOrNone(ctx, id, day)
	if err != nil {
		t.Fatalf("GetOrNone: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}

	ledger.RecordEvent(ctx, id, day, ts(t, "2024-01-10T09:00"))

	rec, err = ledger.GetOrNone(ctx, id, day)
	if err != nil || rec == nil {
		t.Fatalf("expected record after event: rec=%v err=%v", rec, err)
	}
}

func TestDayOf(t *testing.T) {
	hanoi, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	tests := []struct {
		name     string
		instant  time.Time
		loc      *time.Location
		expected string
	}{
		{"utc midday", time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC), time.UTC, "2024-01-10"},
		{"utc just before midnight", time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC), time.UTC, "2024-01-10"},
		{"rolls into next local day", time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC), hanoi, "2024-01-11"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DayOf(tc.instant, tc.loc)
			if got.Format("2006-01-02") != tc.expected {
				t.Errorf("DayOf = %s; want %s", got.Format("2006-01-02"), tc.expected)
			}
			if got.Location() != time.UTC {
				t.Error("day keys must be midnight UTC")
			}
		})
	}
}
