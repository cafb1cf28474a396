package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
	"github.com/autotaghq/autotag/pkg/cache"
)

const (
	// snapshotCacheName labels cache metrics for the taxonomy snapshot cache.
	snapshotCacheName = "taxonomy_snapshot"

	// snapshotCacheSize bounds how many concurrent runs can hold a snapshot.
	snapshotCacheSize = 128

	// snapshotCacheTTL evicts snapshots of runs that never completed cleanly.
	snapshotCacheTTL = time.Hour
)

// CategoriesRepository defines the interface for taxonomy data access.
type CategoriesRepository interface {
	ListActive(ctx context.Context) ([]models.Category, error)
	Snapshot(ctx context.Context) (*models.TaxonomySnapshot, error)
	NearestActive(ctx context.Context, embedding []float32, maxDistance float64, limit int) ([]models.CategoryMatch, error)
	CreateIfAbsent(ctx context.Context, name string, embedding []float32) (*models.Category, bool, error)
	ReplaceAll(ctx context.Context, desired []models.Category) (*models.ReplaceCategoriesResponse, error)
}

// TaxonomyService serves taxonomy reads, per-run snapshots, and the operator
// mass update. Snapshots are cached per execution: every batch of a run
// classifies against the same category set even while other runs extend the
// taxonomy concurrently.
type TaxonomyService struct {
	repo      CategoriesRepository
	embedder  EmbeddingClient
	snapshots *cache.LoaderCache[string, *models.TaxonomySnapshot]
	metrics   observability.CacheMetrics
}

// NewTaxonomyService creates a taxonomy service. metrics may be nil when
// metrics are disabled.
func NewTaxonomyService(
	repo CategoriesRepository, embedder EmbeddingClient, metrics observability.CacheMetrics,
) *TaxonomyService {
	return &TaxonomyService{
		repo:     repo,
		embedder: embedder,
		snapshots: cache.NewLoaderCache[string, *models.TaxonomySnapshot](
			snapshotCacheSize, snapshotCacheTTL, func(executionID string) string { return executionID },
		),
		metrics: metrics,
	}
}

// SnapshotFor returns the taxonomy snapshot for one run, loading and pinning
// it on first use.
func (s *TaxonomyService) SnapshotFor(ctx context.Context, executionID string) (*models.TaxonomySnapshot, error) {
	snapshot, hit, err := s.snapshots.GetWithStats(ctx, executionID,
		func(ctx context.Context, _ string) (*models.TaxonomySnapshot, error) {
			return s.repo.Snapshot(ctx)
		},
	)
	if err != nil {
		return nil, autotagerrors.NewTransientDependencyError("database", "failed to load taxonomy snapshot", err)
	}

	if s.metrics != nil {
		if hit {
			s.metrics.RecordHit(ctx, snapshotCacheName)
		} else {
			s.metrics.RecordMiss(ctx, snapshotCacheName)
		}
	}

	return snapshot, nil
}

// ReleaseSnapshot drops a run's pinned snapshot once the run is terminal.
func (s *TaxonomyService) ReleaseSnapshot(executionID string) {
	s.snapshots.Invalidate(executionID)
}

// ListCategories returns the active taxonomy.
func (s *TaxonomyService) ListCategories(ctx context.Context) (*models.ListCategoriesResponse, error) {
	categories, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	return &models.ListCategoriesResponse{
		Data:  categories,
		Total: len(categories),
	}, nil
}

// ReplaceCategories applies the operator mass update: names is the full
// desired set of active categories. Missing names are soft-deleted, known
// ones (active or deleted) are kept or reactivated, and new names are
// embedded and inserted. Running classifications keep their pinned snapshots.
func (s *TaxonomyService) ReplaceCategories(ctx context.Context, names []string) (*models.ReplaceCategoriesResponse, error) {
	desired := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)

		normalized := models.NormalizeLabel(name)
		if normalized == "" || seen[normalized] {
			continue
		}

		seen[normalized] = true
		desired = append(desired, name)
	}

	if len(desired) == 0 {
		return nil, autotagerrors.NewInvalidInputError("category list contains no usable names")
	}

	embeddings, err := s.embedder.GetEmbeddings(ctx, desired)
	if err != nil {
		return nil, fmt.Errorf("failed to embed category names: %w", err)
	}

	if len(embeddings) != len(desired) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d names", len(embeddings), len(desired))
	}

	categories := make([]models.Category, len(desired))
	for i, name := range desired {
		categories[i] = models.Category{Name: name, Embedding: embeddings[i]}
	}

	result, err := s.repo.ReplaceAll(ctx, categories)
	if err != nil {
		return nil, err
	}

	result.Message = fmt.Sprintf("categories replaced: %d inserted, %d reactivated, %d soft-deleted",
		result.Inserted, result.Reactivated, result.Deleted)

	return result, nil
}
