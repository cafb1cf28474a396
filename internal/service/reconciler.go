package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/observability"
	"github.com/autotaghq/autotag/internal/oracle"
	"github.com/autotaghq/autotag/pkg/embeddings"
)

// ReconcilerConfig holds the reconciliation thresholds. Distances are cosine
// distances in the 0..2 range of the pgvector <=> operator.
type ReconcilerConfig struct {
	// ClusterDistanceThreshold is the largest centroid distance at which an
	// unknown record still joins an existing cluster.
	ClusterDistanceThreshold float64
	// ClusterMinPopulation is the smallest cluster worth naming.
	ClusterMinPopulation int
	// CategoryDistanceThreshold is the largest distance at which a suggested
	// label reuses an existing category instead of creating a new one.
	CategoryDistanceThreshold float64
}

// Reconciler resolves a run's unknown records after classification: it
// clusters them by embedding distance, asks the oracle to name each viable
// cluster, and points the cluster at an existing nearby category or a newly
// created one. Failures are scoped to the cluster they occur in.
type Reconciler struct {
	records    FeedbackRecordsRepository
	categories CategoriesRepository
	embedder   EmbeddingClient
	oracle     ClassificationOracle
	cfg        ReconcilerConfig
	metrics    observability.RunMetrics
}

// NewReconciler creates a reconciler. metrics may be nil when metrics are disabled.
func NewReconciler(
	records FeedbackRecordsRepository,
	categories CategoriesRepository,
	embedder EmbeddingClient,
	oracle ClassificationOracle,
	cfg ReconcilerConfig,
	metrics observability.RunMetrics,
) *Reconciler {
	if cfg.ClusterMinPopulation < 1 {
		cfg.ClusterMinPopulation = 1
	}

	return &Reconciler{
		records:    records,
		categories: categories,
		embedder:   embedder,
		oracle:     oracle,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// Reconcile processes the run's unresolved unknown records and returns a
// report of what it did. Records it cannot resolve stay unknown and are
// picked up by a later run. When some label updates fail after a category was
// chosen, it returns the report together with a partial failure error so the
// caller can log the shortfall without failing the run.
func (r *Reconciler) Reconcile(ctx context.Context, executionID string) (*models.ReconciliationReport, error) {
	report := &models.ReconciliationReport{}

	unknowns, err := r.records.ListUnresolvedUnknowns(ctx, executionID)
	if err != nil {
		return report, fmt.Errorf("failed to list unresolved unknown records: %w", err)
	}

	report.UnknownRecords = len(unknowns)

	if len(unknowns) == 0 {
		slog.Info("no unknown records to reconcile", "execution_id", executionID)

		return report, nil
	}

	texts := make([]string, len(unknowns))
	for i, record := range unknowns {
		texts[i] = record.Feedback
	}

	vectors, err := r.embedder.GetEmbeddings(ctx, texts)
	if err != nil {
		return report, fmt.Errorf("failed to embed unknown records: %w", err)
	}

	if len(vectors) != len(unknowns) {
		return report, fmt.Errorf("embedding count mismatch: got %d vectors for %d records", len(vectors), len(unknowns))
	}

	clusters := clusterByCentroid(vectors, r.cfg.ClusterDistanceThreshold)

	slog.Info("clustered unknown records",
		"execution_id", executionID,
		"records", len(unknowns),
		"clusters", len(clusters),
	)

	for _, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if len(cluster.members) < r.cfg.ClusterMinPopulation {
			report.Unresolved += len(cluster.members)

			continue
		}

		r.resolveCluster(ctx, executionID, unknowns, cluster, report)
	}

	if r.metrics != nil {
		r.metrics.RecordReconciliation(ctx, report.CategoriesCreated, report.CategoriesReused, report.Unresolved)
	}

	slog.Info("reconciliation finished",
		"execution_id", executionID,
		"unknown_records", report.UnknownRecords,
		"reconciled", report.Reconciled,
		"categories_created", report.CategoriesCreated,
		"categories_reused", report.CategoriesReused,
		"unresolved", report.Unresolved,
		"update_failures", report.UpdateFailures,
	)

	if report.UpdateFailures > 0 {
		return report, autotagerrors.NewReconciliationPartialFailureError(
			report.UpdateFailures,
			fmt.Sprintf("%d of %d reconciled records failed to update", report.UpdateFailures, report.UpdateFailures+report.Reconciled),
		)
	}

	return report, nil
}

// resolveCluster names one cluster and updates its records. Any failure
// leaves the cluster's records unknown and moves on; only update shortfalls
// after a category was chosen count as update failures.
func (r *Reconciler) resolveCluster(
	ctx context.Context, executionID string, unknowns []models.FeedbackRecord, cluster *centroidCluster, report *models.ReconciliationReport,
) {
	samples := make([]string, len(cluster.members))
	for i, member := range cluster.members {
		samples[i] = unknowns[member].Feedback
	}

	label, err := r.oracle.SuggestLabel(ctx, samples)
	if err != nil {
		report.Unresolved += len(cluster.members)

		if errors.Is(err, oracle.ErrNoNewLabel) {
			slog.Info("oracle found no common issue in cluster",
				"execution_id", executionID,
				"cluster_size", len(cluster.members),
			)
		} else {
			slog.Warn("label suggestion failed, leaving cluster unknown",
				"execution_id", executionID,
				"cluster_size", len(cluster.members),
				"error", err,
			)
		}

		return
	}

	category, created, err := r.resolveCategory(ctx, label)
	if err != nil {
		report.Unresolved += len(cluster.members)
		slog.Warn("category resolution failed, leaving cluster unknown",
			"execution_id", executionID,
			"label", label,
			"cluster_size", len(cluster.members),
			"error", err,
		)

		return
	}

	if created {
		report.CategoriesCreated++
		report.CreatedLabels = append(report.CreatedLabels, category.Name)
	} else {
		report.CategoriesReused++
	}

	ids := make([]int64, len(cluster.members))
	for i, member := range cluster.members {
		ids[i] = unknowns[member].ID
	}

	updated, err := r.records.SetLabelPostProcessing(ctx, ids, category.Name)
	if err != nil {
		report.UpdateFailures += len(ids)
		slog.Error("failed to update reconciled records",
			"execution_id", executionID,
			"category", category.Name,
			"records", len(ids),
			"error", err,
		)

		return
	}

	report.Reconciled += int(updated)

	if missed := len(ids) - int(updated); missed > 0 {
		report.UpdateFailures += missed
		slog.Error("some reconciled records were not updated",
			"execution_id", executionID,
			"category", category.Name,
			"records", len(ids),
			"updated", updated,
		)
	}

	slog.Info("cluster reconciled",
		"execution_id", executionID,
		"category", category.Name,
		"created", created,
		"records", updated,
	)
}

// resolveCategory turns a suggested label into a category: a nearby active
// category is reused, otherwise one is created (or adopted, if a concurrent
// run created it first).
func (r *Reconciler) resolveCategory(ctx context.Context, label string) (*models.Category, bool, error) {
	vector, err := r.embedder.GetEmbedding(ctx, label)
	if err != nil {
		return nil, false, fmt.Errorf("failed to embed label %q: %w", label, err)
	}

	matches, err := r.categories.NearestActive(ctx, vector, r.cfg.CategoryDistanceThreshold, 1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to search categories near %q: %w", label, err)
	}

	if len(matches) > 0 {
		return &matches[0].Category, false, nil
	}

	category, created, err := r.categories.CreateIfAbsent(ctx, label, vector)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create category %q: %w", label, err)
	}

	return category, created, nil
}

// centroidCluster is one greedy cluster of unknown records. members indexes
// into the slice the vectors were built from.
type centroidCluster struct {
	sum      []float64
	centroid []float32
	members  []int
}

// add folds a vector into the cluster and refreshes the centroid.
func (c *centroidCluster) add(member int, vector []float32) {
	if c.sum == nil {
		c.sum = make([]float64, len(vector))
		c.centroid = make([]float32, len(vector))
	}

	for d, v := range vector {
		c.sum[d] += float64(v)
	}

	c.members = append(c.members, member)

	n := float64(len(c.members))
	for d, v := range c.sum {
		c.centroid[d] = float32(v / n)
	}
}

// clusterByCentroid greedily assigns each vector to the nearest cluster
// centroid, opening a new cluster when none is within maxDistance. Input
// order is preserved, so the same records always cluster the same way.
func clusterByCentroid(vectors [][]float32, maxDistance float64) []*centroidCluster {
	clusters := []*centroidCluster{}

	for i, vector := range vectors {
		var best *centroidCluster

		bestDistance := math.MaxFloat64

		for _, cluster := range clusters {
			if d := embeddings.CosineDistance(vector, cluster.centroid); d < bestDistance {
				best = cluster
				bestDistance = d
			}
		}

		if best == nil || bestDistance >= maxDistance {
			best = &centroidCluster{}
			clusters = append(clusters, best)
		}

		best.add(i, vector)
	}

	return clusters
}
