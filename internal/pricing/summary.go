package pricing

import "github.com/shopspring/decimal"

// EffectiveMarkup returns m, or 1 when m is zero or negative.
func EffectiveMarkup(m decimal.Decimal) decimal.Decimal {
	if !m.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return m
}

// CostSummaryLine is the customer-facing price of one package.
type CostSummaryLine struct {
	PackageName      string
	Services         []string
	TotalCase        int
	TPrice           decimal.Decimal
	Markup           decimal.Decimal
	RevisedUnitPrice decimal.Decimal
	TotalPrice       decimal.Decimal
}

// SummaryLine divides tPrice by the package markup and multiplies the
// revised unit price by the package's case volume.
func SummaryLine(pkg Package, totalCase int, tPrice, markup decimal.Decimal) CostSummaryLine {
	markup = EffectiveMarkup(markup)
	if totalCase < 0 {
		totalCase = 0
	}
	revised := tPrice.Div(markup)
	return CostSummaryLine{
		PackageName:      pkg.Name,
		Services:         pkg.Services,
		TotalCase:        totalCase,
		TPrice:           tPrice,
		Markup:           markup,
		RevisedUnitPrice: revised,
		TotalPrice:       revised.Mul(decimal.NewFromInt(int64(totalCase))),
	}
}

// Summary is the coordinator cost summary across packages.
type Summary struct {
	Lines      []CostSummaryLine
	GrandTotal decimal.Decimal
}

// Summarize sums the total price of every line.
func Summarize(lines []CostSummaryLine) Summary {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice)
	}
	return Summary{Lines: lines, GrandTotal: total}
}
