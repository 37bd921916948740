package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/config"
	"github.com/joaohacker/creditpanel/internal/models"
	"github.com/joaohacker/creditpanel/internal/pricing"
	"github.com/joaohacker/creditpanel/internal/repository"
	"github.com/joaohacker/creditpanel/internal/service"
)

func init() {
	// match production JSON wiring from cmd/server
	decimal.MarshalJSONWithoutQuotes = true
}

type stubCouponStore struct {
	coupons map[string]*models.Coupon
}

func (s *stubCouponStore) GetActiveByCode(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := s.coupons[repository.NormalizeCode(code)]
	if !ok || !c.IsActive {
		return nil, nil
	}
	return c, nil
}

func (s *stubCouponStore) GetByID(context.Context, int64) (*models.Coupon, error) { return nil, nil }
func (s *stubCouponStore) List(context.Context) ([]models.Coupon, error)          { return nil, nil }
func (s *stubCouponStore) Create(_ context.Context, c *models.Coupon) (*models.Coupon, error) {
	return c, nil
}
func (s *stubCouponStore) Update(_ context.Context, c *models.Coupon) (*models.Coupon, error) {
	return c, nil
}
func (s *stubCouponStore) Delete(context.Context, int64) error { return nil }
func (s *stubCouponStore) Redeem(context.Context, int64, int64, decimal.Decimal, decimal.Decimal) error {
	return nil
}

type stubRankingUsers struct{}

func (stubRankingUsers) BannedIDs(context.Context) ([]int64, error)          { return nil, nil }
func (stubRankingUsers) AdminIDs(context.Context) ([]int64, error)           { return nil, nil }
func (stubRankingUsers) NegativeBalanceIDs(context.Context) ([]int64, error) { return nil, nil }
func (stubRankingUsers) EmailsByID(_ context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		out[id] = "player@example.com"
	}
	return out, nil
}

type stubGenerations struct {
	records []models.GenerationRecord
}

func (s *stubGenerations) ListEarned(_ context.Context, offset, limit int) ([]models.GenerationRecord, error) {
	if offset >= len(s.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	return s.records[offset:end], nil
}

func newTestServer(t *testing.T, coupons map[string]*models.Coupon, records []models.GenerationRecord) *Server {
	t.Helper()
	cfg := config.Config{
		ListenAddr:         ":0",
		AdminUsername:      "admin",
		AdminPassword:      "secret",
		Currency:           "$",
		CORSAllowedOrigins: []string{"*"},
		MinimumPurchase:    decimal.RequireFromString("5.00"),
		RankingMinCredits:  decimal.NewFromInt(50),
		RankingTopN:        10,
		RankingPageSize:    1000,
	}
	engine, err := pricing.New(pricing.DefaultTiers)
	if err != nil {
		t.Fatal(err)
	}
	couponService := service.NewCouponService(cfg, &stubCouponStore{coupons: coupons})
	rankingService := service.NewRankingService(cfg, slog.Default(), stubRankingUsers{}, &stubGenerations{records: records})
	return NewServer(cfg, slog.Default(), engine, couponService, rankingService, nil, nil, nil, nil)
}

func TestValidateCouponMalformedJSON(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/validate-coupon", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestValidateCouponSuccess(t *testing.T) {
	coupons := map[string]*models.Coupon{
		"SAVE10": {ID: 1, Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true},
	}
	srv := newTestServer(t, coupons, nil)

	body := `{"code":"save10","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/validate-coupon", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Valid       bool            `json:"valid"`
		Discount    decimal.Decimal `json:"discount"`
		FinalAmount decimal.Decimal `json:"final_amount"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Valid {
		t.Fatalf("expected valid: %s", rec.Body.String())
	}
	if !resp.Discount.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("discount = %s, want 10.00", resp.Discount)
	}
	if !resp.FinalAmount.Equal(decimal.RequireFromString("90.00")) {
		t.Fatalf("final_amount = %s, want 90.00", resp.FinalAmount)
	}
}

func TestValidateCouponBusinessRejectionIs200(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	coupons := map[string]*models.Coupon{
		"OLD": {ID: 2, Code: "OLD", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(5), IsActive: true, ExpiresAt: &past},
	}
	srv := newTestServer(t, coupons, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/validate-coupon", strings.NewReader(`{"code":"OLD","amount":100}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("business rejection should be 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EXPIRED") {
		t.Fatalf("body %q should carry the EXPIRED reason", rec.Body.String())
	}
}

func TestValidateCouponBelowMinimumIs400(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/validate-coupon", strings.NewReader(`{"code":"ANY","amount":2}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRankingEmpty(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ranking":[]`) {
		t.Fatalf("body = %q, want empty ranking array", rec.Body.String())
	}
}

func TestRankingEntries(t *testing.T) {
	records := []models.GenerationRecord{
		{UserID: 9, CreditsEarned: decimal.NewFromInt(120), Status: models.StatusCompleted},
	}
	srv := newTestServer(t, nil, records)
	req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp struct {
		Ranking []models.RankingEntry `json:"ranking"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Ranking) != 1 || resp.Ranking[0].Name != "Playe..." {
		t.Fatalf("ranking = %+v", resp.Ranking)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/pricing/quote?credits=100", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "5.36") {
		t.Fatalf("body = %q, want price 5.36", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/pricing/quote?credits=abc", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad credits should be 400, got %d", rec.Code)
	}
}

func TestPreflightCORS(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/validate-coupon", nil)
	req.Header.Set("Origin", "https://panel.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code >= 300 {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("missing Access-Control-Allow-Origin header")
	}
}

func TestAdminRequiresAuth(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/coupons/", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/coupons/", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAdminRedeemCoupon(t *testing.T) {
	coupons := map[string]*models.Coupon{
		"SAVE10": {ID: 1, Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true},
	}
	srv := newTestServer(t, coupons, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/coupons/redeem", strings.NewReader(`{"user_id":7,"code":"SAVE10","amount":100}`))
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"redeemed":true`) {
		t.Fatalf("body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/coupons/redeem", strings.NewReader(`{"user_id":7,"code":"NOPE","amount":100}`))
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("unknown code should be 409, got %d", rec.Code)
	}
}

func TestAdminStockUnavailableWithoutPoller(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/stock", nil)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
