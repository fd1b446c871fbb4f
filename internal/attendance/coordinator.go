package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/recognition"
)

// OutcomeKind is the top-level result of one recognition event.
type OutcomeKind string

const (
	// NoFaceDetected: the extractor produced zero probe embeddings.
	NoFaceDetected OutcomeKind = "no_face_detected"
	// NoMatch: no enrolled identity was within the match threshold.
	NoMatch OutcomeKind = "no_match"
	// Recorded: an identity was resolved and the ledger transition applied.
	Recorded OutcomeKind = "recorded"
)

// Outcome is the sole output of a recognition event. Absent faces and
// absent matches are normal, frequent results of operation; they are
// outcome variants, never errors.
type Outcome struct {
	Kind       OutcomeKind
	Identity   *models.Identity
	Transition *Transition
	Distance   float64
	EventTime  time.Time
}

// Coordinator combines identity resolution with the day's ledger
// transition. It is the only component that touches both.
type Coordinator struct {
	ledger *Ledger
	loc    *time.Location
}

func NewCoordinator(ledger *Ledger, loc *time.Location) *Coordinator {
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{ledger: ledger, loc: loc}
}

// Process resolves the probes against the population and, on a match,
// records the event for the calendar day of now. Events just after
// midnight start a fresh day for the same identity.
func (c *Coordinator) Process(ctx context.Context, probes [][]float32, population []models.Identity, threshold float64, now time.Time) (*Outcome, error) {
	if len(probes) == 0 {
		return &Outcome{Kind: NoFaceDetected, EventTime: now}, nil
	}

	result := recognition.Match(probes, population, threshold)
	if !result.Matched() {
		return &Outcome{Kind: NoMatch, Distance: result.Distance, EventTime: now}, nil
	}

	day := DayOf(now, c.loc)
	transition, err := c.ledger.RecordEvent(ctx, result.Identity.ID, day, now)
	if err != nil {
		return nil, fmt.Errorf("record event for %s: %w", result.Identity.ID, err)
	}

	return &Outcome{
		Kind:       Recorded,
		Identity:   result.Identity,
		Transition: transition,
		Distance:   result.Distance,
		EventTime:  now,
	}, nil
}
