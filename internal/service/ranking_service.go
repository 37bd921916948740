package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/joaohacker/creditpanel/internal/config"
	"github.com/joaohacker/creditpanel/internal/models"
)

// ErrRankingUnavailable is the only failure surfaced to callers; the
// underlying cause is logged server-side. Partial rankings are never returned.
var ErrRankingUnavailable = errors.New("ranking unavailable")

type RankingUserStore interface {
	BannedIDs(ctx context.Context) ([]int64, error)
	AdminIDs(ctx context.Context) ([]int64, error)
	NegativeBalanceIDs(ctx context.Context) ([]int64, error)
	EmailsByID(ctx context.Context, ids []int64) (map[int64]string, error)
}

type GenerationStore interface {
	ListEarned(ctx context.Context, offset, limit int) ([]models.GenerationRecord, error)
}

type RankingService struct {
	log         *slog.Logger
	users       RankingUserStore
	generations GenerationStore
	minCredits  decimal.Decimal
	topN        int
	pageSize    int
}

func NewRankingService(cfg config.Config, log *slog.Logger, users RankingUserStore, generations GenerationStore) *RankingService {
	return &RankingService{
		log:         log,
		users:       users,
		generations: generations,
		minCredits:  cfg.RankingMinCredits,
		topN:        cfg.RankingTopN,
		pageSize:    cfg.RankingPageSize,
	}
}

// TopN aggregates earned credits per user, drops banned/admin/negative-balance
// users and anyone under the minimum, and returns the masked leaderboard.
func (s *RankingService) TopN(ctx context.Context) ([]models.RankingEntry, error) {
	var (
		wg       sync.WaitGroup
		banned   []int64
		admins   []int64
		negative []int64
		records  []models.GenerationRecord
		errs     [4]error
	)

	// The four initial lookups have no ordering dependency; only the record
	// pagination inside the last goroutine is sequential.
	wg.Add(4)
	go func() { defer wg.Done(); banned, errs[0] = s.users.BannedIDs(ctx) }()
	go func() { defer wg.Done(); admins, errs[1] = s.users.AdminIDs(ctx) }()
	go func() { defer wg.Done(); negative, errs[2] = s.users.NegativeBalanceIDs(ctx) }()
	go func() { defer wg.Done(); records, errs[3] = s.fetchAllEarned(ctx) }()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			s.log.Error("ranking aggregation failed", "err", err)
			return nil, ErrRankingUnavailable
		}
	}

	excluded := make(map[int64]struct{}, len(banned)+len(admins)+len(negative))
	for _, set := range [][]int64{banned, admins, negative} {
		for _, id := range set {
			excluded[id] = struct{}{}
		}
	}

	totals := make(map[int64]decimal.Decimal)
	for _, rec := range records {
		totals[rec.UserID] = totals[rec.UserID].Add(rec.CreditsEarned)
	}

	type ranked struct {
		userID  int64
		credits decimal.Decimal
	}
	var survivors []ranked
	for userID, credits := range totals {
		if _, skip := excluded[userID]; skip {
			continue
		}
		if credits.LessThan(s.minCredits) {
			continue
		}
		survivors = append(survivors, ranked{userID: userID, credits: credits})
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].credits.Equal(survivors[j].credits) {
			return survivors[i].userID < survivors[j].userID
		}
		return survivors[i].credits.GreaterThan(survivors[j].credits)
	})
	if len(survivors) > s.topN {
		survivors = survivors[:s.topN]
	}

	ids := make([]int64, len(survivors))
	for i, r := range survivors {
		ids[i] = r.userID
	}
	emails, err := s.users.EmailsByID(ctx, ids)
	if err != nil {
		s.log.Error("ranking identity lookup failed", "err", err)
		return nil, ErrRankingUnavailable
	}

	entries := make([]models.RankingEntry, 0, len(survivors))
	for i, r := range survivors {
		entries = append(entries, models.RankingEntry{
			Position: i + 1,
			Name:     maskName(emails[r.userID]),
			Credits:  r.credits,
		})
	}
	return entries, nil
}

// fetchAllEarned pages through the earned-credit log until a short page.
func (s *RankingService) fetchAllEarned(ctx context.Context) ([]models.GenerationRecord, error) {
	var all []models.GenerationRecord
	for offset := 0; ; offset += s.pageSize {
		page, err := s.generations.ListEarned(ctx, offset, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < s.pageSize {
			return all, nil
		}
	}
}

// ExportCSV renders the current leaderboard as a CSV document.
func (s *RankingService) ExportCSV(ctx context.Context) ([]byte, error) {
	entries, err := s.TopN(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"position", "name", "credits"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range entries {
		if err := w.Write([]string{fmt.Sprintf("%d", e.Position), e.Name, e.Credits.StringFixed(2)}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

const maskedNamePlaceholder = "Anonymous"

// maskName derives a display handle from an identity: local-part before any
// '@', letters only, first five characters title-cased, ellipsis appended.
func maskName(identity string) string {
	local := identity
	if i := strings.IndexByte(identity, '@'); i >= 0 {
		local = identity[:i]
	}
	var letters []rune
	for _, r := range local {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) < 2 {
		return maskedNamePlaceholder
	}
	if len(letters) > 5 {
		letters = letters[:5]
	}
	letters[0] = unicode.ToUpper(letters[0])
	for i := 1; i < len(letters); i++ {
		letters[i] = unicode.ToLower(letters[i])
	}
	return string(letters) + "..."
}
