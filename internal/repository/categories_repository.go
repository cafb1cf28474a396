package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/autotaghq/autotag/internal/autotagerrors"
	"github.com/autotaghq/autotag/internal/models"
)

// CategoriesRepository handles data access for the category taxonomy.
// The taxonomy is the only cross-run shared mutable state; every mutation
// goes through this repository so label uniqueness holds under concurrent runs.
type CategoriesRepository struct {
	db *pgxpool.Pool
}

// NewCategoriesRepository creates a new categories repository.
func NewCategoriesRepository(db *pgxpool.Pool) *CategoriesRepository {
	return &CategoriesRepository{db: db}
}

// ListActive retrieves the active taxonomy in insert order.
func (r *CategoriesRepository) ListActive(ctx context.Context) ([]models.Category, error) {
	query := `
		SELECT id, category_name, category_vector, last_updated_time, deleted
		FROM customer_feedback_category
		WHERE deleted = FALSE
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{} // Initialize as empty slice, not nil

	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}

		categories = append(categories, *category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// Snapshot captures the active taxonomy as one immutable set. A run
// classifies every batch against the snapshot taken at partition time.
func (r *CategoriesRepository) Snapshot(ctx context.Context) (*models.TaxonomySnapshot, error) {
	categories, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	return &models.TaxonomySnapshot{Categories: categories}, nil
}

// GetByName retrieves a category by normalized name, including soft-deleted rows.
func (r *CategoriesRepository) GetByName(ctx context.Context, name string) (*models.Category, error) {
	query := `
		SELECT id, category_name, category_vector, last_updated_time, deleted
		FROM customer_feedback_category
		WHERE lower(category_name) = lower($1)
	`

	category, err := scanCategory(r.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autotagerrors.NewNotFoundError("category", "category not found")
		}

		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return category, nil
}

// NearestActive returns the active categories within maxDistance of the probe
// embedding, closest first, using cosine distance (<=>). An empty slice means
// nothing in the taxonomy is near enough.
func (r *CategoriesRepository) NearestActive(
	ctx context.Context, embedding []float32, maxDistance float64, limit int,
) ([]models.CategoryMatch, error) {
	probe := pgvector.NewVector(embedding)

	query := `
		SELECT id, category_name, category_vector, last_updated_time, deleted,
			category_vector <=> $1 AS distance
		FROM customer_feedback_category
		WHERE deleted = FALSE AND category_vector <=> $1 < $2
		ORDER BY distance ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, probe, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest categories: %w", err)
	}
	defer rows.Close()

	var matches []models.CategoryMatch

	for rows.Next() {
		var (
			match models.CategoryMatch
			vec   nullableEmbedding
		)

		err := rows.Scan(
			&match.ID, &match.Name, &vec, &match.LastUpdatedTime, &match.Deleted, &match.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category match: %w", err)
		}

		match.Embedding = vec
		matches = append(matches, match)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nearest categories: %w", err)
	}

	return matches, nil
}

// Create inserts a new category. A duplicate normalized name returns
// TaxonomyConflictError; callers racing on the same label recover by reusing
// the winning row.
func (r *CategoriesRepository) Create(ctx context.Context, name string, embedding []float32) (*models.Category, error) {
	query := `
		INSERT INTO customer_feedback_category (category_name, category_vector)
		VALUES ($1, $2)
		RETURNING id, category_name, category_vector, last_updated_time, deleted
	`

	category, err := scanCategory(r.db.QueryRow(ctx, query, name, pgvector.NewVector(embedding)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			return nil, autotagerrors.NewTaxonomyConflictError(name, "")
		}

		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	return category, nil
}

// CreateIfAbsent inserts a category unless one with the same normalized name
// already exists, and returns the winning row either way. The boolean reports
// whether this call created it. A soft-deleted row with the same name is
// reactivated rather than duplicated.
func (r *CategoriesRepository) CreateIfAbsent(
	ctx context.Context, name string, embedding []float32,
) (*models.Category, bool, error) {
	query := `
		INSERT INTO customer_feedback_category (category_name, category_vector)
		VALUES ($1, $2)
		ON CONFLICT ((lower(category_name))) DO NOTHING
		RETURNING id, category_name, category_vector, last_updated_time, deleted
	`

	category, err := scanCategory(r.db.QueryRow(ctx, query, name, pgvector.NewVector(embedding)))
	if err == nil {
		return category, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create category: %w", err)
	}

	// Lost the race or the name already exists. Read the winner.
	existing, err := r.GetByName(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read winning category %q: %w", name, err)
	}

	if existing.Deleted {
		reactivated, err := r.setDeleted(ctx, existing.ID, false)
		if err != nil {
			return nil, false, err
		}

		return reactivated, false, nil
	}

	return existing, false, nil
}

// ReplaceAll applies a mass taxonomy update in one transaction: active
// categories missing from desired are soft-deleted, soft-deleted ones present
// in desired are reactivated, and names new to the table are inserted.
// Desired entries must carry Name and Embedding.
func (r *CategoriesRepository) ReplaceAll(
	ctx context.Context, desired []models.Category,
) (*models.ReplaceCategoriesResponse, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin category replacement: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := listAllCategories(ctx, tx)
	if err != nil {
		return nil, err
	}

	byNormalized := make(map[string]models.Category, len(existing))
	for _, category := range existing {
		byNormalized[models.NormalizeLabel(category.Name)] = category
	}

	desiredSet := make(map[string]bool, len(desired))

	var result models.ReplaceCategoriesResponse

	for _, category := range desired {
		normalized := models.NormalizeLabel(category.Name)
		if normalized == "" || desiredSet[normalized] {
			continue
		}

		desiredSet[normalized] = true

		current, ok := byNormalized[normalized]
		if !ok {
			_, err := tx.Exec(ctx,
				`INSERT INTO customer_feedback_category (category_name, category_vector) VALUES ($1, $2)`,
				category.Name, pgvector.NewVector(category.Embedding),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert category %q: %w", category.Name, err)
			}

			result.Inserted++

			continue
		}

		if current.Deleted {
			_, err := tx.Exec(ctx,
				`UPDATE customer_feedback_category SET deleted = FALSE, last_updated_time = CURRENT_TIMESTAMP WHERE id = $1`, current.ID,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to reactivate category %q: %w", current.Name, err)
			}

			result.Reactivated++
		}
	}

	for normalized, category := range byNormalized {
		if desiredSet[normalized] || category.Deleted {
			continue
		}

		_, err := tx.Exec(ctx,
			`UPDATE customer_feedback_category SET deleted = TRUE, last_updated_time = CURRENT_TIMESTAMP WHERE id = $1`, category.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to soft-delete category %q: %w", category.Name, err)
		}

		result.Deleted++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit category replacement: %w", err)
	}

	return &result, nil
}

func (r *CategoriesRepository) setDeleted(ctx context.Context, id int64, deleted bool) (*models.Category, error) {
	query := `
		UPDATE customer_feedback_category
		SET deleted = $2, last_updated_time = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING id, category_name, category_vector, last_updated_time, deleted
	`

	category, err := scanCategory(r.db.QueryRow(ctx, query, id, deleted))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autotagerrors.NewNotFoundError("category", "category not found")
		}

		return nil, fmt.Errorf("failed to update category deleted flag: %w", err)
	}

	return category, nil
}

func listAllCategories(ctx context.Context, tx pgx.Tx) ([]models.Category, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, category_name, category_vector, last_updated_time, deleted
		 FROM customer_feedback_category ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category

	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}

		categories = append(categories, *category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating all categories: %w", err)
	}

	return categories, nil
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var (
		category models.Category
		vec      nullableEmbedding
	)

	if err := row.Scan(&category.ID, &category.Name, &vec, &category.LastUpdatedTime, &category.Deleted); err != nil {
		return nil, err
	}

	category.Embedding = vec

	return &category, nil
}

// errEmbeddingScanInvalidType is returned when Scan receives a type other than []byte.
var errEmbeddingScanInvalidType = errors.New("embedding: expected []byte")

// nullableEmbedding scans a vector column that may be NULL without panicking (pgvector.Vector.Scan panics on empty/NULL).
type nullableEmbedding []float32

func (n *nullableEmbedding) Scan(src any) error {
	if src == nil {
		*n = nil

		return nil
	}

	buf, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("%w: got %T", errEmbeddingScanInvalidType, src)
	}

	if len(buf) == 0 {
		*n = nil

		return nil
	}

	var vec pgvector.Vector

	if err := vec.DecodeBinary(buf); err != nil {
		return fmt.Errorf("embedding decode: %w", err)
	}

	*n = vec.Slice()

	return nil
}
