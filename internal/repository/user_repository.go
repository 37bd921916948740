package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joaohacker/creditpanel/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, COALESCE(display_name, ''), balance, is_admin, is_banned, COALESCE(referral_code, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var isAdmin, isBanned int
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Balance, &isAdmin, &isBanned, &u.ReferralCode, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.IsAdmin = isAdmin != 0
	u.IsBanned = isBanned != 0
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user list: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *UserRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	value := 0
	if banned {
		value = 1
	}
	const query = `UPDATE users SET is_banned = ?, updated_at = NOW() WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, value, userID)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set banned rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

func (r *UserRepository) BannedIDs(ctx context.Context) ([]int64, error) {
	return r.idsWhere(ctx, `is_banned = 1`)
}

func (r *UserRepository) AdminIDs(ctx context.Context) ([]int64, error) {
	return r.idsWhere(ctx, `is_admin = 1`)
}

func (r *UserRepository) NegativeBalanceIDs(ctx context.Context) ([]int64, error) {
	return r.idsWhere(ctx, `balance < 0`)
}

func (r *UserRepository) idsWhere(ctx context.Context, condition string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users WHERE `+condition)
	if err != nil {
		return nil, fmt.Errorf("list user ids (%s): %w", condition, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EmailsByID resolves display identities for the given users. Only the ids
// that exist come back in the map.
func (r *UserRepository) EmailsByID(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	query := `SELECT id, email FROM users WHERE id IN (` + string(placeholders) + `)`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("emails by id: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out[id] = email
	}
	return out, rows.Err()
}
