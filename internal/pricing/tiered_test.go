package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testTiers() TierTable {
	return NewTierTable(map[string][]PriceRange{
		"X-Ray": {
			{MaxCases: 50, PricePerCase: dec("80")},
			{MaxCases: 10, PricePerCase: dec("100")},
		},
	})
}

func TestTierTable_StepLookup(t *testing.T) {
	tiers := testTiers()

	tests := []struct {
		cases int
		want  string
		found bool
	}{
		{cases: 1, want: "100", found: true},
		{cases: 10, want: "100", found: true},
		{cases: 11, want: "80", found: true},
		{cases: 50, want: "80", found: true},
		{cases: 100, want: "0", found: false},
	}

	for _, tc := range tests {
		got, ok := tiers.PricePerCase("X-Ray", tc.cases)
		if ok != tc.found {
			t.Fatalf("cases=%d found=%v, want %v", tc.cases, ok, tc.found)
		}
		equalDecimal(t, "pricePerCase", got, tc.want)
	}
}

func TestTierTable_UnknownService(t *testing.T) {
	got, ok := testTiers().PricePerCase("MRI", 5)
	if ok {
		t.Fatalf("expected no tier for unknown service")
	}
	equalDecimal(t, "pricePerCase", got, "0")
}

func TestCaseInput_HardCopySurcharge(t *testing.T) {
	in := CaseInput{NumberOfDays: 4, CasePerDay: 5, ReportType: ReportHardCopy}
	if in.TotalCase() != 20 {
		t.Fatalf("TotalCase = %d, want 20", in.TotalCase())
	}
	equalDecimal(t, "reportTypeCost", in.ReportTypeCost(), "500")

	in.ReportType = ReportDigital
	equalDecimal(t, "digital reportTypeCost", in.ReportTypeCost(), "0")
}

func TestParseReportType(t *testing.T) {
	for raw, want := range map[string]ReportType{"": ReportDigital, "digital": ReportDigital, "Hard Copy": ReportHardCopy} {
		got, err := ParseReportType(raw)
		if err != nil || got != want {
			t.Fatalf("ParseReportType(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseReportType("fax"); err == nil {
		t.Fatalf("expected error for unknown report type")
	}
}

func TestLinePrice_FlatRateExcludesConsumables(t *testing.T) {
	line := LinePrice(ServiceCases{Service: "CBC", TotalCase: 10, ReportTypeCost: dec("250")}, testCatalog(), testTiers())

	if line.Mode != ModeFlatRate {
		t.Fatalf("mode = %s, want flat", line.Mode)
	}
	// 10+2+1+3+4 per test; consumables (40) and the report surcharge are ignored.
	equalDecimal(t, "price", line.Price, "200")
}

func TestLinePrice_FlatRateNameMissingFromCatalogUsesTiers(t *testing.T) {
	tiers := NewTierTable(map[string][]PriceRange{"LFT": {{MaxCases: 100, PricePerCase: dec("12")}}})
	line := LinePrice(ServiceCases{Service: "LFT", TotalCase: 5}, testCatalog(), tiers)

	if line.Mode != ModeTiered {
		t.Fatalf("mode = %s, want tiered", line.Mode)
	}
	equalDecimal(t, "price", line.Price, "60")
}

func TestLinePrice_TieredAddsReportCost(t *testing.T) {
	line := LinePrice(ServiceCases{Service: "X-Ray", TotalCase: 20, ReportTypeCost: dec("500")}, testCatalog(), testTiers())

	equalDecimal(t, "price", line.Price, "2100")
	if line.TierMiss {
		t.Fatalf("unexpected tier miss")
	}
}

func TestLinePrice_TierMissIsFlagged(t *testing.T) {
	line := LinePrice(ServiceCases{Service: "X-Ray", TotalCase: 100, ReportTypeCost: dec("2500")}, testCatalog(), testTiers())

	if !line.TierMiss {
		t.Fatalf("expected tier miss for 100 cases")
	}
	equalDecimal(t, "pricePerCase", line.PricePerCase, "0")
	equalDecimal(t, "price", line.Price, "2500")
}

func TestPackageLines_HardCopyChargedOncePerPackage(t *testing.T) {
	pkg := Package{Name: "Wellness", Services: []string{"CBC", "X-Ray", "ECG"}}
	in := CaseInput{CasePerDay: 10, NumberOfDays: 2, ReportType: ReportHardCopy}

	lines := PackageLines(pkg, in, testCatalog())
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	// CBC is flat-rate, so the surcharge lands on X-Ray.
	for i, want := range []string{"0", "500", "0"} {
		if lines[i].TotalCase != 20 {
			t.Fatalf("line %d: TotalCase = %d, want 20", i, lines[i].TotalCase)
		}
		equalDecimal(t, lines[i].Service+" reportTypeCost", lines[i].ReportTypeCost, want)
	}

	q := SimpleQuote(lines, testCatalog(), testTiers(), decimal.Zero, decimal.Zero)
	// CBC 20×20 + X-Ray 20×80 + 500 + ECG without tiers.
	equalDecimal(t, "subtotal", q.Subtotal, "2500")
}

func TestPackageLines_FlatOnlyPackageCarriesNoSurcharge(t *testing.T) {
	lines := PackageLines(Package{Name: "CBC", Services: []string{"CBC"}}, CaseInput{CasePerDay: 5, NumberOfDays: 1, ReportType: ReportHardCopy}, testCatalog())
	equalDecimal(t, "reportTypeCost", lines[0].ReportTypeCost, "0")
}

func TestApplyMarginAndDiscount(t *testing.T) {
	got := ApplyMarginAndDiscount(dec("1000"), dec("10"), dec("20"))
	equalDecimal(t, "grand total", got, "880")
}

func TestSimpleQuote_PerCaseUsesBusiestService(t *testing.T) {
	tiers := NewTierTable(map[string][]PriceRange{
		"A": {{MaxCases: 100, PricePerCase: dec("10")}},
		"B": {{MaxCases: 100, PricePerCase: dec("5")}},
	})
	q := SimpleQuote([]ServiceCases{
		{Service: "A", TotalCase: 5},
		{Service: "B", TotalCase: 12},
	}, Catalog{}, tiers, decimal.Zero, decimal.Zero)

	if q.TotalCases != 12 {
		t.Fatalf("TotalCases = %d, want 12", q.TotalCases)
	}
	equalDecimal(t, "subtotal", q.Subtotal, "110")
	nearlyEqual(t, "per case", q.PerCasePrice, dec("110").Div(dec("12")))
}

func TestSimpleQuote_ZeroCaseServiceCountsAsOne(t *testing.T) {
	q := SimpleQuote([]ServiceCases{{Service: "A", TotalCase: 0}}, Catalog{}, TierTable{}, decimal.Zero, decimal.Zero)
	if q.TotalCases != 1 {
		t.Fatalf("TotalCases = %d, want 1", q.TotalCases)
	}
}

func TestSimpleQuote_NoServices(t *testing.T) {
	q := SimpleQuote(nil, Catalog{}, TierTable{}, dec("10"), dec("5"))
	equalDecimal(t, "grand total", q.GrandTotal, "0")
	equalDecimal(t, "per case", q.PerCasePrice, "0")
}

func TestSimpleQuote_MarginAndDiscount(t *testing.T) {
	tiers := NewTierTable(map[string][]PriceRange{"A": {{MaxCases: 100, PricePerCase: dec("10")}}})
	q := SimpleQuote([]ServiceCases{{Service: "A", TotalCase: 100}}, Catalog{}, tiers, dec("10"), dec("20"))

	equalDecimal(t, "subtotal", q.Subtotal, "1000")
	equalDecimal(t, "grand total", q.GrandTotal, "880")
	equalDecimal(t, "per case", q.PerCasePrice, "8.8")
	if misses := q.TierMisses(); len(misses) != 0 {
		t.Fatalf("unexpected tier misses: %v", misses)
	}
}

func TestBillingNumberer_SequentialSameDay(t *testing.T) {
	b := NewBillingNumberer(NewMemoryCounter(0))
	b.Clock = func() time.Time { return time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC) }

	first, err := b.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, err := b.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if first != "U4RAD-20240305-000" {
		t.Fatalf("first = %q", first)
	}
	if second != "U4RAD-20240305-001" {
		t.Fatalf("second = %q", second)
	}
}

type failingCounter struct{}

func (failingCounter) Next(context.Context) (int, error) { return 0, errors.New("disk full") }

func TestBillingNumberer_CounterError(t *testing.T) {
	b := NewBillingNumberer(failingCounter{})
	if _, err := b.Next(context.Background()); err == nil {
		t.Fatalf("expected counter error")
	}
}

type couponTable map[string]string

func (c couponTable) ValidateCoupon(_ context.Context, code string) (decimal.Decimal, error) {
	pct, ok := c[code]
	if !ok {
		return decimal.Zero, ErrInvalidCoupon
	}
	return dec(pct), nil
}

func TestResolveDiscount(t *testing.T) {
	coupons := couponTable{"CAMP20": "20", "ZERO": "0", "HUGE": "150"}

	got, err := ResolveDiscount(context.Background(), coupons, " CAMP20 ")
	if err != nil {
		t.Fatalf("ResolveDiscount: %v", err)
	}
	equalDecimal(t, "discount", got, "20")

	for _, code := range []string{"NOPE", "ZERO", "HUGE", ""} {
		got, err := ResolveDiscount(context.Background(), coupons, code)
		if !errors.Is(err, ErrInvalidCoupon) {
			t.Fatalf("code %q: err = %v, want ErrInvalidCoupon", code, err)
		}
		equalDecimal(t, "discount "+code, got, "0")
	}
}

func TestResolveSelections(t *testing.T) {
	pkgs, err := ResolveSelections([]Selection{
		Plain("ECG"),
		Bundle("Executive", "X-Ray", " ", "Pathology", "X-Ray"),
	})
	if err != nil {
		t.Fatalf("ResolveSelections: %v", err)
	}

	if len(pkgs) != 2 {
		t.Fatalf("len = %d, want 2", len(pkgs))
	}
	if pkgs[0].Name != "ECG" || len(pkgs[0].Services) != 1 || pkgs[0].Services[0] != "ECG" {
		t.Fatalf("plain selection resolved to %+v", pkgs[0])
	}
	if len(pkgs[1].Services) != 2 || !pkgs[1].HasPathology() {
		t.Fatalf("bundle resolved to %+v", pkgs[1])
	}

	if _, err := ResolveSelections(nil); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("err = %v, want ErrEmptySelection", err)
	}
	if _, err := ResolveSelections([]Selection{Bundle("Empty")}); !errors.Is(err, ErrEmptyPackage) {
		t.Fatalf("err = %v, want ErrEmptyPackage", err)
	}
}
