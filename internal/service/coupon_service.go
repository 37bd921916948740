package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/config"
	"github.com/joaohacker/creditpanel/internal/models"
	"github.com/joaohacker/creditpanel/internal/repository"
)

// RejectReason classifies why a coupon did not apply. These are expected
// business outcomes, not errors.
type RejectReason string

const (
	ReasonInvalidCode              RejectReason = "INVALID_CODE"
	ReasonBelowMinimum             RejectReason = "BELOW_MINIMUM"
	ReasonNotFoundOrDisabled       RejectReason = "NOT_FOUND_OR_DISABLED"
	ReasonExpired                  RejectReason = "EXPIRED"
	ReasonExhausted                RejectReason = "EXHAUSTED"
	ReasonBelowMinimumAfterDiscount RejectReason = "BELOW_MINIMUM_AFTER_DISCOUNT"
)

// MalformedInput reports whether the rejection is a bad request rather than
// a business-rule outcome.
func (r RejectReason) MalformedInput() bool {
	return r == ReasonInvalidCode || r == ReasonBelowMinimum
}

type CouponResult struct {
	Valid         bool
	Reason        RejectReason
	Message       string
	Discount      decimal.Decimal
	FinalAmount   decimal.Decimal
	DiscountType  models.DiscountType
	DiscountValue decimal.Decimal
	Description   string
}

type CouponStore interface {
	GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, id int64) (*models.Coupon, error)
	List(ctx context.Context) ([]models.Coupon, error)
	Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	Delete(ctx context.Context, id int64) error
	Redeem(ctx context.Context, userID, couponID int64, amount, discount decimal.Decimal) error
}

type CouponService struct {
	coupons     CouponStore
	minPurchase decimal.Decimal
	currency    string
	now         func() time.Time
}

func NewCouponService(cfg config.Config, coupons CouponStore) *CouponService {
	return &CouponService{
		coupons:     coupons,
		minPurchase: cfg.MinimumPurchase,
		currency:    cfg.Currency,
		now:         time.Now,
	}
}

// Validate runs the full check pipeline for a code against a purchase amount.
// It never mutates the coupon's usage counter; the returned error is only for
// upstream failures, every business rejection lands in the result.
func (s *CouponService) Validate(ctx context.Context, code string, amount decimal.Decimal) (*CouponResult, error) {
	if strings.TrimSpace(code) == "" {
		return rejected(ReasonInvalidCode, "coupon code is required"), nil
	}
	if amount.LessThan(s.minPurchase) {
		return rejected(ReasonBelowMinimum,
			fmt.Sprintf("minimum purchase amount is %s%s", s.currency, s.minPurchase.StringFixed(2))), nil
	}

	coupon, err := s.coupons.GetActiveByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return rejected(ReasonNotFoundOrDisabled, "coupon not found or disabled"), nil
	}
	if coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(s.now()) {
		return rejected(ReasonExpired, "coupon has expired"), nil
	}
	if coupon.MaxUses != nil && coupon.TimesUsed >= *coupon.MaxUses {
		return rejected(ReasonExhausted, "coupon usage limit reached"), nil
	}

	discount := s.computeDiscount(coupon, amount)
	final := amount.Sub(discount)
	if final.LessThan(s.minPurchase) {
		required := s.minPurchase.Add(discount)
		return rejected(ReasonBelowMinimumAfterDiscount,
			fmt.Sprintf("discounted total falls below the %s%s minimum; this coupon requires a purchase of at least %s%s",
				s.currency, s.minPurchase.StringFixed(2), s.currency, required.StringFixed(2))), nil
	}

	return &CouponResult{
		Valid:         true,
		Discount:      discount,
		FinalAmount:   final,
		DiscountType:  coupon.DiscountType,
		DiscountValue: coupon.DiscountValue,
		Description:   s.describe(coupon),
	}, nil
}

// Redeem validates and then records the use atomically. The store locks the
// usage counter so concurrent redemptions cannot overshoot max_uses.
func (s *CouponService) Redeem(ctx context.Context, userID int64, code string, amount decimal.Decimal) (*CouponResult, error) {
	result, err := s.Validate(ctx, code, amount)
	if err != nil || !result.Valid {
		return result, err
	}

	coupon, err := s.coupons.GetActiveByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if coupon == nil {
		return rejected(ReasonNotFoundOrDisabled, "coupon not found or disabled"), nil
	}
	if err := s.coupons.Redeem(ctx, userID, coupon.ID, amount, result.Discount); err != nil {
		if errors.Is(err, repository.ErrCouponExhausted) {
			return rejected(ReasonExhausted, "coupon usage limit reached"), nil
		}
		return nil, fmt.Errorf("redeem coupon: %w", err)
	}
	return result, nil
}

func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	return s.coupons.List(ctx)
}

func (s *CouponService) GetByID(ctx context.Context, id int64) (*models.Coupon, error) {
	return s.coupons.GetByID(ctx, id)
}

func (s *CouponService) Create(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	return s.coupons.Create(ctx, coupon)
}

func (s *CouponService) Update(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	return s.coupons.Update(ctx, coupon)
}

func (s *CouponService) Delete(ctx context.Context, id int64) error {
	return s.coupons.Delete(ctx, id)
}

func (s *CouponService) computeDiscount(coupon *models.Coupon, amount decimal.Decimal) decimal.Decimal {
	switch coupon.DiscountType {
	case models.DiscountPercentage:
		return amount.Mul(coupon.DiscountValue).Div(decimal.NewFromInt(100)).Round(2)
	default:
		// fixed: never discounts below a zero net
		return decimal.Min(coupon.DiscountValue, amount).Round(2)
	}
}

func (s *CouponService) describe(coupon *models.Coupon) string {
	if coupon.DiscountType == models.DiscountPercentage {
		return fmt.Sprintf("%s%% off", coupon.DiscountValue.String())
	}
	return fmt.Sprintf("%s%s off", s.currency, coupon.DiscountValue.StringFixed(2))
}

func rejected(reason RejectReason, message string) *CouponResult {
	return &CouponResult{Valid: false, Reason: reason, Message: message}
}
