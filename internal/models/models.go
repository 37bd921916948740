package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type GenerationStatus string

const (
	StatusPending   GenerationStatus = "pending"
	StatusRunning   GenerationStatus = "running"
	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
)

type User struct {
	ID           int64           `json:"id"`
	Email        string          `json:"email"`
	DisplayName  string          `json:"display_name"`
	Balance      decimal.Decimal `json:"balance"`
	IsAdmin      bool            `json:"is_admin"`
	IsBanned     bool            `json:"is_banned"`
	ReferralCode string          `json:"referral_code"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Coupon struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	IsActive      bool            `json:"is_active"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	MaxUses       *int            `json:"max_uses,omitempty"`
	TimesUsed     int             `json:"times_used"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// GenerationRecord is one append-only row of the earned-credit log.
// Rows are aggregated by the ranking service, never mutated.
type GenerationRecord struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	CreditsEarned decimal.Decimal  `json:"credits_earned"`
	Status        GenerationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

type RankingEntry struct {
	Position int             `json:"position"`
	Name     string          `json:"name"`
	Credits  decimal.Decimal `json:"credits"`
}
