package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/models"
)

var ErrCouponExhausted = errors.New("coupon exhausted")

type CouponRepository struct {
	db *sql.DB
}

func NewCouponRepository(db *sql.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

const couponColumns = `id, code, discount_type, discount_value, is_active, expires_at, max_uses, times_used, created_at, updated_at`

func scanCoupon(row interface{ Scan(...any) error }) (*models.Coupon, error) {
	var c models.Coupon
	var isActive int
	var expiresAt sql.NullTime
	var maxUses sql.NullInt64
	if err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &isActive, &expiresAt, &maxUses, &c.TimesUsed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsActive = isActive != 0
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if maxUses.Valid {
		m := int(maxUses.Int64)
		c.MaxUses = &m
	}
	return &c, nil
}

// GetActiveByCode looks up an active coupon by its normalized code.
func (r *CouponRepository) GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = ? AND is_active = 1`
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, query, NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	return coupon, nil
}

func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = ?`
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon by id: %w", err)
	}
	return coupon, nil
}

func (r *CouponRepository) List(ctx context.Context) ([]models.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon list: %w", err)
		}
		coupons = append(coupons, *coupon)
	}
	return coupons, rows.Err()
}

func (r *CouponRepository) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	const query = `
INSERT INTO coupons (code, discount_type, discount_value, is_active, expires_at, max_uses, times_used)
VALUES (?, ?, ?, ?, ?, ?, 0)`
	isActive := 0
	if coupon.IsActive {
		isActive = 1
	}
	res, err := r.db.ExecContext(ctx, query, NormalizeCode(coupon.Code), coupon.DiscountType, coupon.DiscountValue, isActive, coupon.ExpiresAt, coupon.MaxUses)
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("coupon last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *CouponRepository) Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	const query = `
UPDATE coupons
SET code = ?, discount_type = ?, discount_value = ?, is_active = ?, expires_at = ?, max_uses = ?, times_used = ?, updated_at = NOW()
WHERE id = ?`
	isActive := 0
	if coupon.IsActive {
		isActive = 1
	}
	if _, err := r.db.ExecContext(ctx, query, NormalizeCode(coupon.Code), coupon.DiscountType, coupon.DiscountValue, isActive, coupon.ExpiresAt, coupon.MaxUses, coupon.TimesUsed, coupon.ID); err != nil {
		return nil, fmt.Errorf("update coupon: %w", err)
	}
	return r.GetByID(ctx, coupon.ID)
}

func (r *CouponRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM coupons WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	return nil
}

// Redeem records a redemption and bumps the usage counter in one transaction.
// The counter row is locked and re-checked so two concurrent redemptions
// cannot both slip past max_uses.
func (r *CouponRepository) Redeem(ctx context.Context, userID, couponID int64, amount, discount decimal.Decimal) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var timesUsed int
	var maxUses sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT times_used, max_uses FROM coupons WHERE id = ? AND is_active = 1 FOR UPDATE`, couponID)
	if err := row.Scan(&timesUsed, &maxUses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("coupon %d not found or disabled", couponID)
		}
		return fmt.Errorf("lock coupon: %w", err)
	}
	if maxUses.Valid && int64(timesUsed) >= maxUses.Int64 {
		return ErrCouponExhausted
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO coupon_redemptions (user_id, coupon_id, amount, discount) VALUES (?, ?, ?, ?)`, userID, couponID, amount, discount); err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE coupons SET times_used = times_used + 1, updated_at = NOW() WHERE id = ?`, couponID); err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit redemption tx: %w", err)
	}
	return nil
}

// NormalizeCode is the canonical coupon code form used for storage and lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
