package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lostfound/backend/internal/domain"
)

const itemColumns = `id, type, title, description, image_ref, status, created_by, created_at,
	image_features, normalized, processed_at, processing_error, matched_at`

// ItemRepository stores items in PostgreSQL. Features are kept as JSONB.
type ItemRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db, now: time.Now}
}

// Create inserts a new item
func (r *ItemRepository) Create(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, type, title, description, image_ref, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID,
		string(item.Type),
		item.Title,
		item.Description,
		item.ImageRef,
		string(item.Status),
		item.CreatedBy,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// GetByID returns a single item or domain.ErrItemNotFound
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns items with the filter's status and optional type, newest first
func (r *ItemRepository) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE status = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		string(filter.Status),
		string(filter.Type),
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return collectItems(rows)
}

// ListCandidates returns processed, open items of the given type, excluding excludeID
func (r *ItemRepository) ListCandidates(ctx context.Context, itemType domain.ItemType, excludeID string, limit int) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE type = $1
		  AND status = 'open'
		  AND id <> $2
		  AND image_features IS NOT NULL
		  AND normalized IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $3`,
		string(itemType),
		excludeID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return collectItems(rows)
}

// SaveFeatures stores extracted and normalized features and clears any processing error
func (r *ItemRepository) SaveFeatures(ctx context.Context, id string, features *domain.ImageFeatureSet, normalized *domain.NormalizedItem) error {
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("failed to encode image features: %w", err)
	}
	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("failed to encode normalized item: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET image_features = $2, normalized = $3, processed_at = $4, processing_error = ''
		WHERE id = $1`,
		id,
		featuresJSON,
		normalizedJSON,
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save features: %w", err)
	}
	return expectAffected(result, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id))
}

// RecordProcessingError stores the reason the last processing attempt failed
func (r *ItemRepository) RecordProcessingError(ctx context.Context, id string, message string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE items SET processing_error = $2 WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("failed to record processing error: %w", err)
	}
	return expectAffected(result, fmt.Errorf("%w: %s", domain.ErrItemNotFound, id))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item           domain.Item
		itemType       string
		status         string
		featuresJSON   []byte
		normalizedJSON []byte
		processedAt    sql.NullTime
		matchedAt      sql.NullTime
	)

	err := row.Scan(
		&item.ID,
		&itemType,
		&item.Title,
		&item.Description,
		&item.ImageRef,
		&status,
		&item.CreatedBy,
		&item.CreatedAt,
		&featuresJSON,
		&normalizedJSON,
		&processedAt,
		&item.ProcessingError,
		&matchedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Type = domain.ItemType(itemType)
	item.Status = domain.ItemStatus(status)

	if len(featuresJSON) > 0 {
		var features domain.ImageFeatureSet
		if err := json.Unmarshal(featuresJSON, &features); err != nil {
			return nil, fmt.Errorf("failed to decode image features of item %s: %w", item.ID, err)
		}
		item.ImageFeatures = &features
	}
	if len(normalizedJSON) > 0 {
		var normalized domain.NormalizedItem
		if err := json.Unmarshal(normalizedJSON, &normalized); err != nil {
			return nil, fmt.Errorf("failed to decode normalized item %s: %w", item.ID, err)
		}
		item.Normalized = &normalized
	}
	if processedAt.Valid {
		t := processedAt.Time
		item.ProcessedAt = &t
	}
	if matchedAt.Valid {
		t := matchedAt.Time
		item.MatchedAt = &t
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]*domain.Item, error) {
	defer rows.Close()

	items := make([]*domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

func expectAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
