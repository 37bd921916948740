package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tier is one anchor point of the piecewise price curve.
type Tier struct {
	Credits int
	Price   decimal.Decimal
}

// DefaultTiers are the storefront anchor tiers, ascending by credits.
// Prices between anchors are interpolated on the per-unit price, not the
// total, so per-credit cost degrades smoothly with volume.
var DefaultTiers = []Tier{
	{Credits: 100, Price: decimal.RequireFromString("5.36")},
	{Credits: 500, Price: decimal.RequireFromString("22.00")},
	{Credits: 1000, Price: decimal.RequireFromString("37.50")},
	{Credits: 10000, Price: decimal.RequireFromString("300.00")},
}

const (
	// CreditStep is the granularity the storefront sells in.
	CreditStep = 5
	// maxLookupCredits bounds the inverse search; far above any real purchase.
	maxLookupCredits = 500000
)

// Package is a precomputed storefront bundle. Prices always come from
// Engine.Price so the list cannot drift from the tier table.
type Package struct {
	Label   string          `json:"label"`
	Credits int             `json:"credits"`
	Price   decimal.Decimal `json:"price"`
}

// Engine computes prices over a fixed tier table. Immutable after New.
type Engine struct {
	tiers    []Tier
	units    []decimal.Decimal
	packages []Package
}

// New validates the tier table and precomputes unit prices and the package
// list. Tiers must be sorted ascending by credits with no duplicates.
func New(tiers []Tier) (*Engine, error) {
	if len(tiers) < 2 {
		return nil, fmt.Errorf("at least two tiers required, got %d", len(tiers))
	}
	units := make([]decimal.Decimal, len(tiers))
	for i, t := range tiers {
		if t.Credits <= 0 {
			return nil, fmt.Errorf("tier %d: credits must be positive", i)
		}
		if t.Price.Sign() < 0 {
			return nil, fmt.Errorf("tier %d: price cannot be negative", i)
		}
		if i > 0 && t.Credits <= tiers[i-1].Credits {
			return nil, fmt.Errorf("tier %d: credits must be strictly ascending", i)
		}
		units[i] = t.Price.Div(decimal.NewFromInt(int64(t.Credits)))
	}

	e := &Engine{tiers: tiers, units: units}
	labels := []string{"Starter", "Basic", "Plus", "Pro", "Elite", "Ultra"}
	sizes := []int{100, 500, 1000, 2500, 5000, 10000}
	for i, credits := range sizes {
		e.packages = append(e.packages, Package{
			Label:   labels[i],
			Credits: credits,
			Price:   e.Price(credits),
		})
	}
	return e, nil
}

// MustDefault builds an engine over DefaultTiers.
func MustDefault() *Engine {
	e, err := New(DefaultTiers)
	if err != nil {
		panic(err)
	}
	return e
}

// Price returns the total for the requested credit quantity, rounded to two
// decimals half away from zero. Below the first tier the unit price of tier
// zero applies; above the last tier the last unit price keeps scaling
// linearly (deliberately not clamped).
func (e *Engine) Price(credits int) decimal.Decimal {
	if credits <= 0 {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(int64(credits))

	first := e.tiers[0]
	if credits <= first.Credits {
		return qty.Mul(e.units[0]).Round(2)
	}
	last := len(e.tiers) - 1
	if credits >= e.tiers[last].Credits {
		return qty.Mul(e.units[last]).Round(2)
	}

	i := 0
	for credits > e.tiers[i+1].Credits {
		i++
	}
	lo, hi := e.tiers[i], e.tiers[i+1]
	span := decimal.NewFromInt(int64(hi.Credits - lo.Credits))
	frac := decimal.NewFromInt(int64(credits - lo.Credits)).Div(span)
	unit := e.units[i].Add(e.units[i+1].Sub(e.units[i]).Mul(frac))
	return qty.Mul(unit).Round(2)
}

// PricePer100 is the effective cost per 100 credits at the given quantity.
// The caller must guard credits == 0.
func (e *Engine) PricePer100(credits int) decimal.Decimal {
	return e.Price(credits).
		Div(decimal.NewFromInt(int64(credits))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// CreditsFromBalance returns the largest multiple of CreditStep whose price
// does not exceed balance. Binary search over step counts, so it converges in
// O(log(maxLookupCredits/CreditStep)) price evaluations.
func (e *Engine) CreditsFromBalance(balance decimal.Decimal) int {
	if balance.Sign() <= 0 {
		return 0
	}
	lo, hi := 0, maxLookupCredits/CreditStep
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if e.Price(mid * CreditStep).LessThanOrEqual(balance) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo * CreditStep
}

// Packages returns the fixed storefront bundle list.
func (e *Engine) Packages() []Package {
	return e.packages
}
