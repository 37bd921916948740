package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/models"
	"github.com/joaohacker/creditpanel/internal/provider"
)

func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := s.coupons.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, coupons)
}

type couponRequest struct {
	Code          string      `json:"code"`
	DiscountType  string      `json:"discount_type"`
	DiscountValue json.Number `json:"discount_value"`
	IsActive      *bool       `json:"is_active"`
	ExpiresAt     *time.Time  `json:"expires_at"`
	MaxUses       *int        `json:"max_uses"`
}

func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	discountType := models.DiscountType(req.DiscountType)
	if discountType != models.DiscountPercentage && discountType != models.DiscountFixed {
		http.Error(w, "discount_type must be percentage or fixed", http.StatusBadRequest)
		return
	}
	value, err := decimal.NewFromString(req.DiscountValue.String())
	if err != nil || value.Sign() <= 0 {
		http.Error(w, "discount_value must be a positive number", http.StatusBadRequest)
		return
	}
	if discountType == models.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		http.Error(w, "percentage discount cannot exceed 100", http.StatusBadRequest)
		return
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		http.Error(w, "max_uses must be positive", http.StatusBadRequest)
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = generateCouponCode()
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	coupon := &models.Coupon{
		Code:          code,
		DiscountType:  discountType,
		DiscountValue: value,
		IsActive:      isActive,
		ExpiresAt:     req.ExpiresAt,
		MaxUses:       req.MaxUses,
	}
	created, err := s.coupons.Create(r.Context(), coupon)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

type couponUpdateRequest struct {
	Code          *string      `json:"code"`
	DiscountType  *string      `json:"discount_type"`
	DiscountValue *json.Number `json:"discount_value"`
	IsActive      *bool        `json:"is_active"`
	ExpiresAt     *time.Time   `json:"expires_at"`
	MaxUses       *int         `json:"max_uses"`
	TimesUsed     *int         `json:"times_used"`
}

func (s *Server) handleUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req couponUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	existing, err := s.coupons.GetByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if existing == nil {
		http.Error(w, "coupon not found", http.StatusNotFound)
		return
	}

	if req.Code != nil && strings.TrimSpace(*req.Code) != "" {
		existing.Code = *req.Code
	}
	if req.DiscountType != nil {
		dt := models.DiscountType(*req.DiscountType)
		if dt != models.DiscountPercentage && dt != models.DiscountFixed {
			http.Error(w, "discount_type must be percentage or fixed", http.StatusBadRequest)
			return
		}
		existing.DiscountType = dt
	}
	if req.DiscountValue != nil {
		value, err := decimal.NewFromString(req.DiscountValue.String())
		if err != nil || value.Sign() <= 0 {
			http.Error(w, "discount_value must be a positive number", http.StatusBadRequest)
			return
		}
		existing.DiscountValue = value
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.ExpiresAt != nil {
		existing.ExpiresAt = req.ExpiresAt
	}
	if req.MaxUses != nil {
		if *req.MaxUses <= 0 {
			http.Error(w, "max_uses must be positive", http.StatusBadRequest)
			return
		}
		existing.MaxUses = req.MaxUses
	}
	if req.TimesUsed != nil && *req.TimesUsed >= 0 {
		existing.TimesUsed = *req.TimesUsed
	}
	if existing.MaxUses != nil && existing.TimesUsed > *existing.MaxUses {
		http.Error(w, "times_used cannot exceed max_uses", http.StatusBadRequest)
		return
	}

	updated, err := s.coupons.Update(r.Context(), existing)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.coupons.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type redeemCouponRequest struct {
	UserID int64       `json:"user_id"`
	Code   string      `json:"code"`
	Amount json.Number `json:"amount"`
}

// handleRedeemCoupon consumes one use of a coupon on behalf of a checkout.
// The storefront backend calls this after payment settles.
func (s *Server) handleRedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req redeemCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		http.Error(w, "user_id must be positive", http.StatusBadRequest)
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		http.Error(w, "amount must be a number", http.StatusBadRequest)
		return
	}

	result, err := s.coupons.Redeem(r.Context(), req.UserID, req.Code, amount)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !result.Valid {
		status := http.StatusConflict
		if result.Reason.MalformedInput() {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, map[string]any{
			"redeemed": false,
			"reason":   result.Reason,
			"error":    result.Message,
		})
		return
	}

	s.notifier.CouponRedeemed(req.Code, result.Discount.StringFixed(2))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"redeemed":     true,
		"discount":     result.Discount,
		"final_amount": result.FinalAmount,
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleSetBanned(banned bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseID(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "invalid id", http.StatusBadRequest)
			return
		}
		if err := s.users.SetBanned(r.Context(), id, banned); err != nil {
			s.badRequest(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	snapshot := s.snapshotOrNil()
	if snapshot == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "stock unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"stock":      snapshot.Stock,
		"fetched_at": snapshot.FetchedAt,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	snapshot := s.snapshotOrNil()
	if snapshot == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "jobs unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":       snapshot.Jobs,
		"fetched_at": snapshot.FetchedAt,
	})
}

func (s *Server) handleExportRanking(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "exports not configured"})
		return
	}
	data, err := s.ranking.ExportCSV(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "ranking unavailable"})
		return
	}
	url, err := s.uploader.Upload(r.Context(), data, "text/csv")
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.notifier.ExportReady(url)
	s.writeJSON(w, http.StatusCreated, map[string]any{"url": url})
}

func (s *Server) snapshotOrNil() *provider.Snapshot {
	if s.poller == nil {
		return nil
	}
	return s.poller.Snapshot()
}

func generateCouponCode() string {
	return "CP-" + strings.ToUpper(uuid.NewString()[:8])
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
