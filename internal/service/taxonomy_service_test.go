package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// countingCategoriesRepo wraps fakeCategoriesRepo, counting snapshot loads.
type countingCategoriesRepo struct {
	fakeCategoriesRepo
	snapshots atomic.Int64
}

func (c *countingCategoriesRepo) Snapshot(ctx context.Context) (*models.TaxonomySnapshot, error) {
	c.snapshots.Add(1)

	return c.fakeCategoriesRepo.Snapshot(ctx)
}

func TestTaxonomyService_SnapshotFor(t *testing.T) {
	repo := &countingCategoriesRepo{}
	repo.categories = []models.Category{{ID: 1, Name: "Crash"}}

	s := NewTaxonomyService(repo, &fakeEmbedder{}, nil)

	t.Run("one load per run, shared by concurrent batches", func(t *testing.T) {
		var wg sync.WaitGroup

		for range 8 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				snapshot, err := s.SnapshotFor(context.Background(), "run-1")
				if err != nil {
					t.Errorf("SnapshotFor() unexpected error: %v", err)

					return
				}

				if len(snapshot.Categories) != 1 {
					t.Errorf("snapshot categories = %d, want 1", len(snapshot.Categories))
				}
			}()
		}

		wg.Wait()

		if got := repo.snapshots.Load(); got != 1 {
			t.Errorf("snapshot loads = %d, want 1", got)
		}
	})

	t.Run("release forces a fresh load", func(t *testing.T) {
		s.ReleaseSnapshot("run-1")

		if _, err := s.SnapshotFor(context.Background(), "run-1"); err != nil {
			t.Fatalf("SnapshotFor() unexpected error: %v", err)
		}

		if got := repo.snapshots.Load(); got != 2 {
			t.Errorf("snapshot loads = %d, want 2 after release", got)
		}
	})

	t.Run("runs pin independent snapshots", func(t *testing.T) {
		if _, err := s.SnapshotFor(context.Background(), "run-2"); err != nil {
			t.Fatalf("SnapshotFor() unexpected error: %v", err)
		}

		if got := repo.snapshots.Load(); got != 3 {
			t.Errorf("snapshot loads = %d, want one per run", got)
		}
	})
}

func TestTaxonomyService_ReplaceCategories(t *testing.T) {
	t.Run("rejects an empty desired set", func(t *testing.T) {
		s := NewTaxonomyService(&fakeCategoriesRepo{}, &fakeEmbedder{}, nil)

		_, err := s.ReplaceCategories(context.Background(), []string{"  ", ""})
		if !errors.Is(err, autotagerrors.ErrInvalidInput) {
			t.Fatalf("ReplaceCategories() error = %v, want InvalidInputError", err)
		}
	})

	t.Run("deduplicates names under normalization", func(t *testing.T) {
		embedder := &fakeEmbedder{fallback: []float32{1, 0, 0}}
		s := NewTaxonomyService(&fakeCategoriesRepo{}, embedder, nil)

		// ReplaceAll is not implemented on the fake; reaching it proves the
		// request passed validation with the duplicate already dropped.
		_, err := s.ReplaceCategories(context.Background(), []string{"Crash", "  crash ", "Login Issue"})
		if err == nil || errors.Is(err, autotagerrors.ErrInvalidInput) {
			t.Fatalf("ReplaceCategories() error = %v, want the repo boundary reached", err)
		}

		if len(embedder.batches) != 1 {
			t.Fatalf("embedding batches = %d, want 1", len(embedder.batches))
		}

		if got := embedder.batches[0]; len(got) != 2 {
			t.Errorf("embedded names = %v, want the 2 distinct names", got)
		}
	})
}
