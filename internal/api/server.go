package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/config"
	"github.com/joaohacker/creditpanel/internal/models"
	"github.com/joaohacker/creditpanel/internal/notify"
	"github.com/joaohacker/creditpanel/internal/pricing"
	"github.com/joaohacker/creditpanel/internal/provider"
	"github.com/joaohacker/creditpanel/internal/service"
	"github.com/joaohacker/creditpanel/internal/storage"
)

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	pricing  *pricing.Engine
	coupons  *service.CouponService
	ranking  *service.RankingService
	users    *service.UserService
	poller   *provider.Poller
	uploader *storage.Uploader
	notifier *notify.Notifier
	router   *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, engine *pricing.Engine, coupons *service.CouponService, ranking *service.RankingService, users *service.UserService, poller *provider.Poller, uploader *storage.Uploader, notifier *notify.Notifier) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Preflight requests are answered here, before any business logic runs.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		addr:     cfg.ListenAddr,
		username: cfg.AdminUsername,
		password: cfg.AdminPassword,
		log:      log,
		pricing:  engine,
		coupons:  coupons,
		ranking:  ranking,
		users:    users,
		poller:   poller,
		uploader: uploader,
		notifier: notifier,
		router:   r,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/pricing/packages", s.handlePackages)
		r.Get("/pricing/quote", s.handleQuote)
		r.Get("/pricing/affordable", s.handleAffordable)
		r.Post("/validate-coupon", s.handleValidateCoupon)
		r.Get("/ranking", s.handleRanking)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Route("/admin", func(r chi.Router) {
			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", s.handleListCoupons)
				r.Post("/", s.handleCreateCoupon)
				r.Post("/redeem", s.handleRedeemCoupon)
				r.Put("/{id}", s.handleUpdateCoupon)
				r.Delete("/{id}", s.handleDeleteCoupon)
			})
			r.Get("/users", s.handleListUsers)
			r.Post("/users/{id}/ban", s.handleSetBanned(true))
			r.Post("/users/{id}/unban", s.handleSetBanned(false))
			r.Get("/stock", s.handleStock)
			r.Get("/jobs", s.handleJobs)
			r.Post("/exports/ranking", s.handleExportRanking)
		})
	})

	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("panel api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"packages": s.pricing.Packages()})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	credits, err := strconv.Atoi(r.URL.Query().Get("credits"))
	if err != nil || credits <= 0 {
		http.Error(w, "credits must be a positive integer", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"credits":       credits,
		"price":         s.pricing.Price(credits),
		"price_per_100": s.pricing.PricePer100(credits),
	})
}

func (s *Server) handleAffordable(w http.ResponseWriter, r *http.Request) {
	balance, err := decimal.NewFromString(r.URL.Query().Get("balance"))
	if err != nil {
		http.Error(w, "balance must be a decimal number", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"credits": s.pricing.CreditsFromBalance(balance),
	})
}

type validateCouponRequest struct {
	Code   string      `json:"code"`
	Amount json.Number `json:"amount"`
}

func (s *Server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "invalid json"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "amount must be a number"})
		return
	}

	result, err := s.coupons.Validate(r.Context(), req.Code, amount)
	if err != nil {
		s.log.Error("validate coupon", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"valid": false, "error": "internal error"})
		return
	}
	if !result.Valid {
		status := http.StatusOK
		if result.Reason.MalformedInput() {
			status = http.StatusBadRequest
		}
		s.writeJSON(w, status, map[string]any{
			"valid":  false,
			"reason": result.Reason,
			"error":  result.Message,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"valid":          true,
		"discount":       result.Discount,
		"final_amount":   result.FinalAmount,
		"discount_type":  result.DiscountType,
		"discount_value": result.DiscountValue,
		"description":    result.Description,
	})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ranking.TopN(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "ranking unavailable"})
		return
	}
	if entries == nil {
		entries = []models.RankingEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ranking": entries})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="creditpanel"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
