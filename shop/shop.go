/*
Package shop sells subscription packages and activates them on the member's
standing.

PURPOSE:
  - Catalog: basic/premium/vip packages across monthly/quarterly/yearly
    terms, ILS prices as exact decimals.
  - Purchase: records the sale and activates the subscription, resetting the
    period's class counter.
  - Revenue: boss roll-up summed over recorded purchases.

MONEY:
  Prices are shopspring/decimal, never float64. Arithmetic on money must be
  exact.
*/
package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reelrep/studio-engine/booking"
	"github.com/reelrep/studio-engine/schedule"
)

var ErrPackageNotFound = errors.New("package not found")

// =============================================================================
// CATALOG
// =============================================================================

type Term string

const (
	TermMonthly   Term = "monthly"
	TermQuarterly Term = "quarterly"
	TermYearly    Term = "yearly"
)

// Months returns the subscription length the term buys.
func (t Term) Months() int {
	switch t {
	case TermQuarterly:
		return 3
	case TermYearly:
		return 12
	default:
		return 1
	}
}

// Package is one purchasable subscription offering.
type Package struct {
	ID              string
	Tier            schedule.Tier
	Name            string
	Price           decimal.Decimal
	Currency        string
	Term            Term
	ClassesPerMonth int
	Features        []string
	Popular         bool
}

// DefaultCatalog is the studio's standing price list (ILS).
func DefaultCatalog() []Package {
	return []Package{
		{
			ID: "basic-monthly", Tier: schedule.TierBasic, Name: "Basic",
			Price: decimal.NewFromInt(199), Currency: "ILS", Term: TermMonthly,
			ClassesPerMonth: 8,
			Features:        []string{"8 classes / month", "open gym access"},
		},
		{
			ID: "premium-monthly", Tier: schedule.TierPremium, Name: "Premium",
			Price: decimal.NewFromInt(299), Currency: "ILS", Term: TermMonthly,
			ClassesPerMonth: 16,
			Features:        []string{"16 classes / month", "open gym access", "premium classes"},
			Popular:         true,
		},
		{
			ID: "vip-monthly", Tier: schedule.TierVIP, Name: "VIP",
			Price: decimal.NewFromInt(449), Currency: "ILS", Term: TermMonthly,
			ClassesPerMonth: 30,
			Features:        []string{"unlimited booking priority", "all classes", "1:1 coach session"},
		},
		{
			ID: "premium-quarterly", Tier: schedule.TierPremium, Name: "Premium (3 months)",
			Price: decimal.NewFromInt(799), Currency: "ILS", Term: TermQuarterly,
			ClassesPerMonth: 16,
			Features:        []string{"16 classes / month", "open gym access", "premium classes"},
		},
		{
			ID: "vip-yearly", Tier: schedule.TierVIP, Name: "VIP (annual)",
			Price: decimal.NewFromInt(4490), Currency: "ILS", Term: TermYearly,
			ClassesPerMonth: 30,
			Features:        []string{"all classes", "priority booking", "quarterly coach review"},
		},
	}
}

// =============================================================================
// PURCHASES
// =============================================================================

// Purchase is one recorded sale.
type Purchase struct {
	ID        string
	UserID    string
	PackageID string
	Amount    decimal.Decimal
	Currency  string
	At        time.Time
}

// PurchaseStore persists sales for the finances roll-up.
type PurchaseStore interface {
	InsertPurchase(ctx context.Context, p Purchase) error
	ListPurchases(ctx context.Context) ([]Purchase, error)
}

// Service sells packages.
type Service struct {
	Catalog   []Package
	Purchases PurchaseStore
	Standings booking.StandingStore
}

// PackageByID looks the package up in the catalog.
func (s *Service) PackageByID(id string) (*Package, error) {
	for i := range s.Catalog {
		if s.Catalog[i].ID == id {
			return &s.Catalog[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, id)
}

// Buy records the sale and activates the subscription on the member's
// standing. The period class counter resets; any previous subscription is
// replaced outright.
func (s *Service) Buy(ctx context.Context, userID, packageID string, now time.Time) (*Purchase, error) {
	pkg, err := s.PackageByID(packageID)
	if err != nil {
		return nil, err
	}

	standing, err := s.Standings.GetStanding(ctx, userID)
	if err != nil {
		return nil, err
	}
	standing.Subscription = &booking.Subscription{
		Tier:            pkg.Tier,
		Status:          booking.SubscriptionActive,
		StartDate:       now,
		EndDate:         now.AddDate(0, pkg.Term.Months(), 0),
		ClassesPerMonth: pkg.ClassesPerMonth,
		ClassesUsed:     0,
	}
	if err := s.Standings.SaveStanding(ctx, standing); err != nil {
		return nil, err
	}

	p := Purchase{
		ID:        uuid.NewString(),
		UserID:    userID,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Currency:  pkg.Currency,
		At:        now,
	}
	if err := s.Purchases.InsertPurchase(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// FINANCES
// =============================================================================

// RevenueSummary is the boss finances roll-up.
type RevenueSummary struct {
	Total     decimal.Decimal
	Currency  string
	Count     int
	ByPackage map[string]decimal.Decimal
}

// Revenue sums all recorded purchases.
func (s *Service) Revenue(ctx context.Context) (RevenueSummary, error) {
	purchases, err := s.Purchases.ListPurchases(ctx)
	if err != nil {
		return RevenueSummary{}, err
	}
	sum := RevenueSummary{
		Total:     decimal.Zero,
		Currency:  "ILS",
		ByPackage: map[string]decimal.Decimal{},
	}
	for _, p := range purchases {
		sum.Total = sum.Total.Add(p.Amount)
		sum.ByPackage[p.PackageID] = sum.ByPackage[p.PackageID].Add(p.Amount)
		sum.Count++
	}
	return sum, nil
}
