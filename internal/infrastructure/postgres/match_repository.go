package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/lostfound/backend/internal/domain"
)

const matchColumns = `id, lost_item_id, found_item_id, confidence_score,
	image_similarity, text_similarity, metadata_similarity,
	explanation, status, created_at, resolved_at`

// MatchRepository stores matches in PostgreSQL
type MatchRepository struct {
	db    *sql.DB
	newID func() string
	now   func() time.Time
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db, newID: uuid.NewString, now: time.Now}
}

// SaveAll inserts matches in one transaction. Pairs that already exist are
// skipped; only newly inserted matches are returned, with ID and CreatedAt set.
func (r *MatchRepository) SaveAll(ctx context.Context, matches []domain.Match) ([]domain.Match, error) {
	saved := make([]domain.Match, 0, len(matches))
	if len(matches) == 0 {
		return saved, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range matches {
		if m.Status == "" {
			m.Status = domain.MatchStatusPending
		}
		m.ID = r.newID()

		err := tx.QueryRowContext(ctx, `
			INSERT INTO matches (id, lost_item_id, found_item_id, confidence_score,
				image_similarity, text_similarity, metadata_similarity, explanation, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (lost_item_id, found_item_id) DO NOTHING
			RETURNING created_at`,
			m.ID,
			m.LostItemID,
			m.FoundItemID,
			m.ConfidenceScore,
			m.Breakdown.ImageSimilarity,
			m.Breakdown.TextSimilarity,
			m.Breakdown.MetadataSimilarity,
			m.Explanation,
			string(m.Status),
			r.now().UTC(),
		).Scan(&m.CreatedAt)

		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert match %s: %w", m.PairKey(), err)
		}
		saved = append(saved, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit matches: %w", err)
	}
	return saved, nil
}

// GetByID returns a single match or domain.ErrMatchNotFound
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)

	match, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMatchNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return match, nil
}

// ListForItem returns the matches on the itemType side of the given item,
// highest confidence first
func (r *MatchRepository) ListForItem(ctx context.Context, itemID string, itemType domain.ItemType) ([]domain.Match, error) {
	var column string
	switch itemType {
	case domain.ItemTypeLost:
		column = "lost_item_id"
	case domain.ItemTypeFound:
		column = "found_item_id"
	default:
		return nil, fmt.Errorf("%w: unknown item type %q", domain.ErrValidation, itemType)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE `+column+` = $1
		ORDER BY confidence_score DESC, created_at ASC`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.Match, 0)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}
	return matches, nil
}

// Resolve marks the match resolved and both referenced items matched in one
// transaction. A match that is no longer pending yields domain.ErrMatchAlreadyResolved.
func (r *MatchRepository) Resolve(ctx context.Context, match *domain.Match) error {
	resolvedAt := r.now().UTC()
	if match.ResolvedAt != nil {
		resolvedAt = *match.ResolvedAt
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE matches
		SET status = 'resolved', resolved_at = $2
		WHERE id = $1 AND status = 'pending'`,
		match.ID,
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve match: %w", err)
	}
	if err := expectAffected(result, fmt.Errorf("%w: %s", domain.ErrMatchAlreadyResolved, match.ID)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE items
		SET status = 'matched', matched_at = $2
		WHERE id = ANY($1)`,
		pq.Array([]string{match.LostItemID, match.FoundItemID}),
		resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark items matched: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resolution: %w", err)
	}
	return nil
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var (
		m          domain.Match
		status     string
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&m.ID,
		&m.LostItemID,
		&m.FoundItemID,
		&m.ConfidenceScore,
		&m.Breakdown.ImageSimilarity,
		&m.Breakdown.TextSimilarity,
		&m.Breakdown.MetadataSimilarity,
		&m.Explanation,
		&status,
		&m.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Status = domain.MatchStatus(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		m.ResolvedAt = &t
	}
	return &m, nil
}
