// initdb creates the pgvector extension and the pipeline tables, and
// optionally seeds the taxonomy from a JSON file of category names
// (-seed categories.json). Seeding embeds each name with the configured
// embedding provider and is idempotent: existing names are left alone.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/autotaghq/autotag/internal/embeddings"
	"github.com/autotaghq/autotag/internal/googleai"
	"github.com/autotaghq/autotag/internal/repository"
	"github.com/autotaghq/autotag/pkg/database"
)

const (
	defaultDimensions = 1536
	exitSuccess       = 0
	exitFailure       = 1
)

var errUnsupportedEmbeddingProvider = errors.New("unsupported EMBEDDING_PROVIDER")

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS customer_feedback (
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

CREATE INDEX IF NOT EXISTS idx_customer_feedback_execution ON customer_feedback (execution_id);
CREATE INDEX IF NOT EXISTS idx_customer_feedback_ref ON customer_feedback (ref_id, last_updated_time DESC);

CREATE TABLE IF NOT EXISTS customer_feedback_category (
    id SERIAL PRIMARY KEY,
    category_name VARCHAR(255) NOT NULL,
    category_vector vector(%d),
    last_updated_time TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    deleted bool DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_category_name_unique ON customer_feedback_category ((lower(category_name)));
CREATE INDEX IF NOT EXISTS idx_category_vector ON customer_feedback_category USING ivfflat (category_vector);
`

func main() {
	os.Exit(run())
}

func run() int {
	seedPath := flag.String("seed", "", "optional JSON file with an array of category names to seed")
	flag.Parse()

	// Load .env for consistency with the API server.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	dimensions := getEnvAsInt("EMBEDDING_DIMENSIONS", defaultDimensions)
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}

	ctx := context.Background()

	db, err := database.NewPostgresPool(ctx, databaseURL, database.WithAfterConnect(pgxvec.RegisterTypes))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	if _, err := db.Exec(ctx, fmt.Sprintf(schemaDDL, dimensions)); err != nil {
		slog.Error("Failed to create schema", "error", err)

		return exitFailure
	}

	slog.Info("Schema created", "dimensions", dimensions)

	if *seedPath == "" {
		return exitSuccess
	}

	names, err := readSeedFile(*seedPath)
	if err != nil {
		slog.Error("Failed to read seed file", "path", *seedPath, "error", err)

		return exitFailure
	}

	embedder, err := newEmbeddingClient(ctx, dimensions)
	if err != nil {
		slog.Error("Failed to create embedding client", "error", err)

		return exitFailure
	}

	created, err := seedCategories(ctx, repository.NewCategoriesRepository(db), embedder, names)
	if err != nil {
		slog.Error("Seeding failed", "error", err)

		return exitFailure
	}

	fmt.Printf("Seeded %d of %d categories.\n", created, len(names))

	return exitSuccess
}

func readSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	return names, nil
}

func newEmbeddingClient(ctx context.Context, dimensions int) (embeddings.Client, error) {
	provider := os.Getenv("EMBEDDING_PROVIDER")
	apiKey := os.Getenv("EMBEDDING_API_KEY")
	model := os.Getenv("EMBEDDING_MODEL")

	switch provider {
	case "openai", "":
		if model != "" {
			return embeddings.NewOpenAIClientWithModel(apiKey, goopenai.EmbeddingModel(model)), nil
		}

		return embeddings.NewOpenAIClient(apiKey), nil
	case "google":
		client, err := googleai.NewClient(ctx, apiKey,
			googleai.WithModel(model),
			googleai.WithDimensions(dimensions),
		)
		if err != nil {
			return nil, err
		}

		return embeddings.NewGoogleClient(client), nil
	case "mock":
		return embeddings.NewMockClientWithDimensions(dimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEmbeddingProvider, provider)
	}
}

func seedCategories(
	ctx context.Context,
	repo *repository.CategoriesRepository,
	embedder embeddings.Client,
	names []string,
) (int, error) {
	created := 0

	for _, name := range names {
		if name == "" {
			continue
		}

		vector, err := embedder.GetEmbedding(ctx, name)
		if err != nil {
			return created, fmt.Errorf("embed category %q: %w", name, err)
		}

		_, inserted, err := repo.CreateIfAbsent(ctx, name, vector)
		if err != nil {
			return created, fmt.Errorf("create category %q: %w", name, err)
		}

		if inserted {
			created++
			slog.Info("Seeded category", "name", name)
		}
	}

	return created, nil
}

func getEnvAsInt(key string, defaultValue int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}

	return n
}
