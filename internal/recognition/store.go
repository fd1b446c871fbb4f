package recognition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/observability"
)

// CorruptRecordError flags an enrolled identity whose stored embedding
// cannot be used for matching. Such rows are skipped, never fatal.
type CorruptRecordError struct {
	Identity *models.Identity
	Reason   string
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt embedding for identity %s: %s", e.Identity.ID, e.Reason)
}

// IdentityLister loads every enrolled identity with its raw embedding.
// Implemented by storage.PostgresStore.
type IdentityLister interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
}

// EmbeddingStore is the read path for the match population. It snapshots
// the full set of enrolled identities once per recognition event, so all
// probes in that event are compared against the same population.
type EmbeddingStore struct {
	db  IdentityLister
	dim int
}

func NewEmbeddingStore(db IdentityLister) *EmbeddingStore {
	return &EmbeddingStore{db: db, dim: EmbeddingDim}
}

// All returns every enrolled identity with a valid embedding. Rows whose
// embedding is missing or has the wrong dimension are logged and excluded
// so one bad row cannot take down recognition for everyone else.
func (s *EmbeddingStore) All(ctx context.Context) ([]models.Identity, error) {
	identities, err := s.db.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	valid := make([]models.Identity, 0, len(identities))
	for i := range identities {
		if err := s.validate(&identities[i]); err != nil {
			slog.Warn("skipping corrupt identity record",
				"identity_id", identities[i].ID,
				"name", identities[i].Name,
				"error", err,
			)
			observability.CorruptRecords.Inc()
			continue
		}
		valid = append(valid, identities[i])
	}
	return valid, nil
}

func (s *EmbeddingStore) validate(id *models.Identity) error {
	if len(id.Embedding) == 0 {
		return &CorruptRecordError{Identity: id, Reason: "embedding missing"}
	}
	if len(id.Embedding) != s.dim {
		return &CorruptRecordError{
			Identity: id,
			Reason:   fmt.Sprintf("embedding has %d dimensions, want %d", len(id.Embedding), s.dim),
		}
	}
	return nil
}
