package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/models"
)

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Log(ctx context.Context, userID int64, creditsEarned decimal.Decimal, status models.GenerationStatus) error {
	const query = `
INSERT INTO generations (user_id, credits_earned, status)
VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, creditsEarned, status); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return nil
}

// ListEarned returns one page of earn-bearing rows (credits_earned > 0,
// status completed or running) ordered by id. Callers paginate with
// offset/limit until a short page comes back.
func (r *GenerationRepository) ListEarned(ctx context.Context, offset, limit int) ([]models.GenerationRecord, error) {
	const query = `
SELECT id, user_id, credits_earned, status, created_at
FROM generations
WHERE credits_earned > 0 AND status IN (?, ?)
ORDER BY id ASC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, models.StatusCompleted, models.StatusRunning, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list earned generations: %w", err)
	}
	defer rows.Close()

	var records []models.GenerationRecord
	for rows.Next() {
		var rec models.GenerationRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.CreditsEarned, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
