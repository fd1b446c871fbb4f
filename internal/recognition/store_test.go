package recognition

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/attend/internal/models"
)

type fakeLister struct {
	identities []models.Identity
	err        error
}

func (f *fakeLister) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	return f.identities, f.err
}

func TestEmbeddingStoreSkipsCorruptRecords(t *testing.T) {
	valid1 := identity("valid1", embedding(1))
	valid2 := identity("valid2", embedding(2))
	corruptShort := identity("short", []float32{1, 2, 3})
	corruptEmpty := identity("empty", nil)

	store := NewEmbeddingStore(&fakeLister{
		identities: []models.Identity{valid1, corruptShort, valid2, corruptEmpty},
	})

	got, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("All returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d identities; want 2", len(got))
	}
	if got[0].Name != "valid1" || got[1].Name != "valid2" {
		t.Errorf("wrong survivors: %q, %q", got[0].Name, got[1].Name)
	}
}

func TestEmbeddingStoreBehavesAsIfCorruptRowsAbsent(t *testing.T) {
	// A store with one corrupt record must match identically to a store
	// with only the valid records.
	valid := identity("valid", embedding(1))
	corrupt := identity("corrupt", []float32{9})
	probe := embedding(0.99)

	withCorrupt := NewEmbeddingStore(&fakeLister{identities: []models.Identity{corrupt, valid}})
	withoutCorrupt := NewEmbeddingStore(&fakeLister{identities: []models.Identity{valid}})

	popA, _ := withCorrupt.All(context.Background())
	popB, _ := withoutCorrupt.All(context.Background())

	resultA := Match([][]float32{probe}, popA, 0.6)
	resultB := Match([][]float32{probe}, popB, 0.6)

	if resultA.Distance != resultB.Distance {
		t.Errorf("distances differ: %v vs %v", resultA.Distance, resultB.Distance)
	}
	if resultA.Identity.Name != resultB.Identity.Name {
		t.Errorf("identities differ: %q vs %q", resultA.Identity.Name, resultB.Identity.Name)
	}
}

func TestEmbeddingStorePropagatesListError(t *testing.T) {
	listErr := errors.New("connection reset")
	store := NewEmbeddingStore(&fakeLister{err: listErr})

	if _, err := store.All(context.Background()); !errors.Is(err, listErr) {
		t.Errorf("expected wrapped list error, got %v", err)
	}
}

func TestCorruptRecordError(t *testing.T) {
	ident := identity("bad", []float32{1})
	err := (&EmbeddingStore{dim: EmbeddingDim}).validate(&ident)

	var corrupt *CorruptRecordError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptRecordError, got %v", err)
	}
	if corrupt.Identity.Name != "bad" {
		t.Errorf("error names %q; want %q", corrupt.Identity.Name, "bad")
	}
}
