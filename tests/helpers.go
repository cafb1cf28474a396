// Package tests contains integration tests against a real Postgres with
// pgvector, started via testcontainers. Tests skip when Docker is not
// available.
package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/autotaghq/autotag/pkg/database"
	"github.com/jackc/pgx/v5/pgxpool"
)

// testDimensions keeps test vectors small; the mock embedding client is
// configured to match.
const testDimensions = 8

const testSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE customer_feedback (
    id SERIAL PRIMARY KEY,
    product_name VARCHAR(255),
    store VARCHAR(20),
    ref_id VARCHAR(100),
    stars VARCHAR(5),
    title VARCHAR(255),
    feedback TEXT NOT NULL,
    label_llm VARCHAR(255),
    create_date TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    last_updated_time TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    label_post_processing VARCHAR(255),
    label_correction VARCHAR(255),
    execution_id TEXT
);

CREATE INDEX idx_customer_feedback_execution ON customer_feedback (execution_id);
CREATE INDEX idx_customer_feedback_ref ON customer_feedback (ref_id, last_updated_time DESC);

CREATE TABLE customer_feedback_category (
    id SERIAL PRIMARY KEY,
    category_name VARCHAR(255) NOT NULL,
    category_vector vector(8),
    last_updated_time TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    deleted bool DEFAULT FALSE
);

CREATE UNIQUE INDEX idx_category_name_unique ON customer_feedback_category ((lower(category_name)));
`

// startTestDB starts a pgvector Postgres container, applies the schema, and
// returns a connected pool. The container and pool are cleaned up with the test.
func startTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("autotag_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start postgres container (is Docker running?): %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewPostgresPool(ctx, connStr, database.WithAfterConnect(pgxvec.RegisterTypes))
	require.NoError(t, err)

	t.Cleanup(db.Close)

	_, err = db.Exec(ctx, testSchema)
	require.NoError(t, err)

	return db
}

// testVector builds a unit vector along one axis, so distances between
// different axes are exactly sqrt(2) in L2 and 1.0 in cosine distance.
func testVector(axis int) []float32 {
	v := make([]float32, testDimensions)
	v[axis%testDimensions] = 1

	return v
}

// nearVector builds a vector close to testVector(axis) but not identical.
func nearVector(axis int) []float32 {
	v := testVector(axis)
	v[(axis+1)%testDimensions] = 0.05

	return v
}

func uniqueExecutionID(t *testing.T) string {
	t.Helper()

	return fmt.Sprintf("it-%s-%d", t.Name(), time.Now().UnixNano())
}
