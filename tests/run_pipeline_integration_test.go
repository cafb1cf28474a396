package tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autotaghq/autotag/internal/embeddings"
	"github.com/autotaghq/autotag/internal/ingest"
	"github.com/autotaghq/autotag/internal/models"
	"github.com/autotaghq/autotag/internal/oracle"
	"github.com/autotaghq/autotag/internal/repository"
	"github.com/autotaghq/autotag/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// scriptedCompleter answers classify prompts with classifyTag and label
// suggestion prompts with suggestTag, wrapped in the tag envelope the oracle
// parses.
type scriptedCompleter struct {
	classifyTag string
	suggestTag  string
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "summarize the common issue") {
		return "<tag>" + c.suggestTag + "</tag>", nil
	}

	return "<tag>" + c.classifyTag + "</tag>", nil
}

// newPipeline wires the full pipeline against the test database, a mock
// embedding client, and a scripted oracle.
func newPipeline(db *pgxpool.Pool, completer oracle.ChatCompleter) (*service.RunsService, *repository.FeedbackRecordsRepository, *repository.CategoriesRepository) {
	categoriesRepo := repository.NewCategoriesRepository(db)
	feedbackRepo := repository.NewFeedbackRecordsRepository(db)
	embedder := embeddings.NewMockClientWithDimensions(testDimensions)
	classificationOracle := oracle.New(completer, "test", nil, nil)

	taxonomy := service.NewTaxonomyService(categoriesRepo, embedder, nil)

	worker := service.NewClassificationWorker(
		classificationOracle, feedbackRepo,
		service.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		nil,
	)

	reconciler := service.NewReconciler(
		feedbackRepo, categoriesRepo, embedder, classificationOracle,
		service.ReconcilerConfig{
			ClusterDistanceThreshold:  1.99,
			ClusterMinPopulation:      3,
			CategoryDistanceThreshold: 0.4,
		},
		nil,
	)

	runManager := service.NewRunManager()
	publisher := service.NewNotificationPublisher(16, time.Second, nil)

	orchestrator := service.NewOrchestrator(
		ingest.NewFileSource(1000),
		taxonomy,
		worker,
		reconciler,
		feedbackRepo,
		runManager,
		publisher,
		service.OrchestratorConfig{
			BatchSize:            2,
			MaxConcurrentBatches: 2,
			ValidationRetry:      service.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
			ErrorRateThreshold:   0.2,
		},
		nil,
	)

	return service.NewRunsService(orchestrator, runManager), feedbackRepo, categoriesRepo
}

func writeRecordSet(t *testing.T, feedbacks []string) string {
	t.Helper()

	var sb strings.Builder
	sb.WriteString("product_name,store,id,stars,title,feedback,date\n")

	for i, feedback := range feedbacks {
		sb.WriteString(fmt.Sprintf("app,ios,ref-%d,3,title %d,%s,2024-01-22T23:31:48\n", i, i, feedback))
	}

	path := filepath.Join(t.TempDir(), "records.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))

	return path
}

func waitForTerminal(t *testing.T, runs *service.RunsService, executionID string) *models.RunStatusResponse {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)

	for time.Now().Before(deadline) {
		status, err := runs.Status(context.Background(), executionID)
		require.NoError(t, err)

		if status.State == models.RunStateSucceeded || status.State == models.RunStateFailed {
			return status
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatalf("run %s did not reach a terminal state", executionID)

	return nil
}

func TestRunPipelineClassifiesAgainstSeededTaxonomy(t *testing.T) {
	db := startTestDB(t)

	runs, feedbackRepo, categoriesRepo := newPipeline(db, &scriptedCompleter{classifyTag: "billing"})
	ctx := context.Background()

	embedder := embeddings.NewMockClientWithDimensions(testDimensions)
	vector, err := embedder.GetEmbedding(ctx, "billing")
	require.NoError(t, err)

	_, _, err = categoriesRepo.CreateIfAbsent(ctx, "billing", vector)
	require.NoError(t, err)

	path := writeRecordSet(t, []string{
		"charged twice this month",
		"refund never arrived",
		"subscription price went up",
		"invoice is wrong",
		"billing page crashes",
	})

	started, err := runs.Start(ctx, &models.StartRunRequest{SourcePath: path, ExecutionID: uniqueExecutionID(t)})
	require.NoError(t, err)

	status := waitForTerminal(t, runs, started.ExecutionID)
	require.Equal(t, models.RunStateSucceeded, status.State)
	require.NotNil(t, status.Outcome)
	assert.Equal(t, 5, status.Outcome.Stats.Total)
	assert.Equal(t, 5, status.Outcome.Stats.Success)
	assert.Equal(t, 0, status.Outcome.Stats.Failure)

	records, err := feedbackRepo.ListByExecution(ctx, started.ExecutionID, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 5)

	for _, record := range records {
		require.NotNil(t, record.LabelLLM)
		assert.Equal(t, "billing", *record.LabelLLM)
	}

	require.NotEmpty(t, status.Outcome.TopCategories)
	assert.Equal(t, models.CategoryCount{Label: "billing", Count: 5}, status.Outcome.TopCategories[0])
}

func TestRunPipelineReconcilesUnknownsIntoNewCategory(t *testing.T) {
	db := startTestDB(t)

	runs, feedbackRepo, categoriesRepo := newPipeline(db, &scriptedCompleter{
		classifyTag: models.LabelUnknown,
		suggestTag:  "login problems",
	})
	ctx := context.Background()

	path := writeRecordSet(t, []string{
		"cannot sign in since the update",
		"password reset email never comes",
		"login button does nothing",
		"stuck on the login screen",
		"two factor code rejected",
	})

	started, err := runs.Start(ctx, &models.StartRunRequest{SourcePath: path, ExecutionID: uniqueExecutionID(t)})
	require.NoError(t, err)

	status := waitForTerminal(t, runs, started.ExecutionID)
	require.Equal(t, models.RunStateSucceeded, status.State)
	require.NotNil(t, status.Outcome)
	require.NotNil(t, status.Outcome.Report)
	assert.Equal(t, 5, status.Outcome.Report.UnknownRecords)
	assert.Equal(t, 1, status.Outcome.Report.CategoriesCreated)
	assert.Equal(t, 5, status.Outcome.Report.Reconciled)

	active, err := categoriesRepo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "login problems", active[0].Name)

	// Every unknown row in the cluster was resolved.
	unknowns, err := feedbackRepo.ListUnresolvedUnknowns(ctx, started.ExecutionID)
	require.NoError(t, err)
	assert.Empty(t, unknowns)
}

func TestRunPipelineFailsValidationOnMissingFile(t *testing.T) {
	db := startTestDB(t)

	runs, _, _ := newPipeline(db, &scriptedCompleter{classifyTag: models.LabelUnknown})
	ctx := context.Background()

	started, err := runs.Start(ctx, &models.StartRunRequest{
		SourcePath:  filepath.Join(t.TempDir(), "missing.csv"),
		ExecutionID: uniqueExecutionID(t),
	})
	require.NoError(t, err, "Start accepts the run; validation happens inside the run")

	status := waitForTerminal(t, runs, started.ExecutionID)
	require.Equal(t, models.RunStateFailed, status.State)
	require.NotNil(t, status.Outcome)
	assert.Contains(t, status.Outcome.ErrorMessage, "does not exist")
}
