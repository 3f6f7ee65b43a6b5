package pricing

import (
	"slices"

	"github.com/shopspring/decimal"
)

// FlatRateServices are the pathology sub-tests priced per test from the
// cost catalog instead of from a volume tier.
var FlatRateServices = []string{
	"CBC",
	"Complete Hemogram",
	"Hemoglobin",
	"Urine Routine",
	"Stool Examination",
	"Lipid Profile",
	"Kidney Profile",
	"LFT",
	"KFT",
	"Random Blood Glucose",
	"Blood Grouping",
}

// IsFlatRate reports whether name is on the flat-rate allow-list.
func IsFlatRate(name string) bool {
	return slices.Contains(FlatRateServices, name)
}

// PriceRange is one volume bracket: up to MaxCases cases at PricePerCase.
type PriceRange struct {
	MaxCases     int
	PricePerCase decimal.Decimal
}

// TierTable maps a service name to its price ranges, ascending by MaxCases.
type TierTable map[string][]PriceRange

// NewTierTable copies ranges into a table with each service's ranges sorted
// ascending by MaxCases.
func NewTierTable(ranges map[string][]PriceRange) TierTable {
	t := make(TierTable, len(ranges))
	for name, rs := range ranges {
		sorted := slices.Clone(rs)
		slices.SortStableFunc(sorted, func(a, b PriceRange) int {
			return a.MaxCases - b.MaxCases
		})
		t[name] = sorted
	}
	return t
}

// PricePerCase returns the price of the first range whose MaxCases covers
// cases. It returns zero and false when cases exceeds every range.
func (t TierTable) PricePerCase(service string, cases int) (decimal.Decimal, bool) {
	for _, r := range t[service] {
		if cases <= r.MaxCases {
			return r.PricePerCase, true
		}
	}
	return decimal.Zero, false
}

// PricingMode says how a simple-flow line was priced.
type PricingMode string

const (
	ModeFlatRate PricingMode = "flat"
	ModeTiered   PricingMode = "tiered"
)

// ServiceCases is one service line of the simple flow.
type ServiceCases struct {
	Service        string
	TotalCase      int
	ReportTypeCost decimal.Decimal
}

// PackageLines expands p into one line per service at the package's case
// volume. The hard copy cost of in is charged once per package, on the first
// service not priced flat from catalog; a package of flat-rate services only
// carries none.
func PackageLines(p Package, in CaseInput, catalog Catalog) []ServiceCases {
	surcharge := in.ReportTypeCost()
	lines := make([]ServiceCases, 0, len(p.Services))
	for _, svc := range p.Services {
		line := ServiceCases{Service: svc, TotalCase: in.TotalCase(), ReportTypeCost: decimal.Zero}
		if _, priced := catalog.Lookup(svc); !surcharge.IsZero() && !(priced && IsFlatRate(svc)) {
			line.ReportTypeCost = surcharge
			surcharge = decimal.Zero
		}
		lines = append(lines, line)
	}
	return lines
}

// QuoteLine is the priced form of a ServiceCases line.
type QuoteLine struct {
	Service        string
	TotalCase      int
	Mode           PricingMode
	PricePerCase   decimal.Decimal
	ReportTypeCost decimal.Decimal
	Price          decimal.Decimal
	// TierMiss is set when no range covered the case volume and the line
	// was priced at zero per case.
	TierMiss bool
}

// LinePrice prices a single service. Flat-rate services present in the
// catalog cost FlatRate × cases and ignore the report surcharge. Every other
// service uses the tier table plus the report surcharge.
func LinePrice(line ServiceCases, catalog Catalog, tiers TierTable) QuoteLine {
	cases := max(line.TotalCase, 0)
	out := QuoteLine{Service: line.Service, TotalCase: cases, ReportTypeCost: decimal.Zero}

	if cost, ok := catalog.Lookup(line.Service); ok && IsFlatRate(line.Service) {
		out.Mode = ModeFlatRate
		out.PricePerCase = cost.FlatRate()
		out.Price = out.PricePerCase.Mul(decimal.NewFromInt(int64(cases)))
		return out
	}

	perCase, ok := tiers.PricePerCase(line.Service, cases)
	out.Mode = ModeTiered
	out.PricePerCase = perCase
	out.TierMiss = !ok
	out.ReportTypeCost = line.ReportTypeCost
	out.Price = perCase.Mul(decimal.NewFromInt(int64(cases))).Add(line.ReportTypeCost)
	return out
}

// Quote is the result of the simple (customer) flow.
type Quote struct {
	Lines         []QuoteLine
	Subtotal      decimal.Decimal
	PartnerMargin decimal.Decimal
	Discount      decimal.Decimal
	GrandTotal    decimal.Decimal
	// TotalCases is the busiest single service's volume, not the sum.
	TotalCases   int
	PerCasePrice decimal.Decimal
}

// TierMisses lists the services that fell outside every tier.
func (q Quote) TierMisses() []string {
	var out []string
	for _, l := range q.Lines {
		if l.TierMiss {
			out = append(out, l.Service)
		}
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// SimpleQuote prices every line and applies the partner margin and discount
// percentages to the subtotal. The per-case price divides the grand total by
// the largest single-service volume, where a service with no cases counts
// as one.
func SimpleQuote(lines []ServiceCases, catalog Catalog, tiers TierTable, partnerMargin, discount decimal.Decimal) Quote {
	q := Quote{
		Lines:         make([]QuoteLine, 0, len(lines)),
		Subtotal:      decimal.Zero,
		PartnerMargin: partnerMargin,
		Discount:      discount,
		PerCasePrice:  decimal.Zero,
	}

	for _, l := range lines {
		priced := LinePrice(l, catalog, tiers)
		q.Lines = append(q.Lines, priced)
		q.Subtotal = q.Subtotal.Add(priced.Price)
		q.TotalCases = max(q.TotalCases, max(priced.TotalCase, 1))
	}

	q.GrandTotal = ApplyMarginAndDiscount(q.Subtotal, partnerMargin, discount)
	if q.TotalCases > 0 {
		q.PerCasePrice = q.GrandTotal.Div(decimal.NewFromInt(int64(q.TotalCases)))
	}
	return q
}

// ApplyMarginAndDiscount computes subtotal × (100+margin)/100 × (100−discount)/100.
func ApplyMarginAndDiscount(subtotal, partnerMargin, discount decimal.Decimal) decimal.Decimal {
	up := hundred.Add(partnerMargin).Div(hundred)
	down := hundred.Sub(discount).Div(hundred)
	return subtotal.Mul(up).Mul(down)
}
