// Package pricing holds the cost computation rules of a camp estimate: the
// package base-cost aggregation, the overhead/profit markup, the customer
// markup divisor and the volume-tiered pricing of the simple flow.
//
// Every function here is pure. Callers recompute whenever an input changes.
package pricing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	// OverheadMultiplier inflates the base cost plus additives into overhead.
	OverheadMultiplier = decimal.RequireFromString("1.5")
	// PriceMultiplier is overhead and profit combined (1.5 × 1.3).
	PriceMultiplier = decimal.RequireFromString("1.95")
	// ProfitMultiplier is used only when back-solving overhead from an edited tPrice.
	ProfitMultiplier = decimal.RequireFromString("1.3")
)

// ServiceCost is the catalog entry for a single named test or service.
type ServiceCost struct {
	Name        string
	Salary      decimal.Decimal
	Incentive   decimal.Decimal
	Misc        decimal.Decimal
	Equipment   decimal.Decimal
	Consumables decimal.Decimal
	Reporting   decimal.Decimal
}

// Total sums all six cost components.
func (c ServiceCost) Total() decimal.Decimal {
	return c.FlatRate().Add(c.Consumables)
}

// FlatRate is the per-test rate of the simple flow. It leaves out consumables.
func (c ServiceCost) FlatRate() decimal.Decimal {
	return c.Salary.Add(c.Incentive).Add(c.Misc).Add(c.Equipment).Add(c.Reporting)
}

// Catalog indexes service costs by name.
type Catalog map[string]ServiceCost

// NewCatalog builds a catalog. A later entry with the same name wins.
func NewCatalog(costs []ServiceCost) Catalog {
	return lo.SliceToMap(costs, func(c ServiceCost) (string, ServiceCost) {
		return c.Name, c
	})
}

// Lookup returns the entry for name and whether it exists.
func (c Catalog) Lookup(name string) (ServiceCost, bool) {
	cost, ok := c[name]
	return cost, ok
}

// BaseCostResult is the aggregated base cost of a package.
type BaseCostResult struct {
	Total decimal.Decimal
	// Unpriced lists services that had no catalog entry and contributed zero.
	Unpriced []string
}

// BaseCost sums the full cost of every service in the package. Services
// missing from the catalog add nothing to the total and are listed in
// Unpriced instead of failing the calculation.
func BaseCost(services []string, catalog Catalog) BaseCostResult {
	result := BaseCostResult{Total: decimal.Zero}
	for _, name := range services {
		cost, ok := catalog.Lookup(name)
		if !ok {
			result.Unpriced = append(result.Unpriced, name)
			continue
		}
		result.Total = result.Total.Add(cost.Total())
	}
	return result
}

// PackageCost is the coordinator-facing cost breakdown of one package.
type PackageCost struct {
	TotalBaseCost decimal.Decimal
	Overhead      decimal.Decimal
	TPrice        decimal.Decimal
	Travel        decimal.Decimal
	Stay          decimal.Decimal
	Food          decimal.Decimal
}

// NewPackageCost derives overhead and tPrice from a base cost and the
// travel, stay and food additives. Negative inputs are clamped to zero.
func NewPackageCost(base, travel, stay, food decimal.Decimal) PackageCost {
	return PackageCost{
		TotalBaseCost: clamp(base),
		Travel:        clamp(travel),
		Stay:          clamp(stay),
		Food:          clamp(food),
	}.Recompute()
}

// Additives is travel + stay + food.
func (p PackageCost) Additives() decimal.Decimal {
	return p.Travel.Add(p.Stay).Add(p.Food)
}

// Recompute derives overhead and tPrice forward from base cost and additives.
func (p PackageCost) Recompute() PackageCost {
	sum := p.TotalBaseCost.Add(p.Additives())
	p.Overhead = sum.Mul(OverheadMultiplier)
	p.TPrice = sum.Mul(PriceMultiplier)
	return p
}

// WithBaseCost replaces the base cost and recomputes, keeping the additives.
func (p PackageCost) WithBaseCost(base decimal.Decimal) PackageCost {
	p.TotalBaseCost = clamp(base)
	return p.Recompute()
}

// WithAdditives replaces travel, stay and food and recomputes.
func (p PackageCost) WithAdditives(travel, stay, food decimal.Decimal) PackageCost {
	p.Travel = clamp(travel)
	p.Stay = clamp(stay)
	p.Food = clamp(food)
	return p.Recompute()
}

// WithTPrice applies a direct edit of the total price. The base cost is
// back-solved through 1.95 and clamped at zero, while overhead is back-solved
// through 1.3. When the clamp engages the result no longer satisfies the
// forward formulas, so a later Recompute changes overhead and tPrice.
func (p PackageCost) WithTPrice(tPrice decimal.Decimal) PackageCost {
	tPrice = clamp(tPrice)
	p.TPrice = tPrice
	p.TotalBaseCost = clamp(tPrice.Div(PriceMultiplier).Sub(p.Additives()))
	p.Overhead = tPrice.Div(ProfitMultiplier)
	return p
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
