package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var generated = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func TestEstimateDocumentFigures(t *testing.T) {
	q := pricing.SimpleQuote(
		[]pricing.ServiceCases{{Service: "X-Ray", TotalCase: 12}, {Service: "ECG", TotalCase: 5}},
		nil,
		pricing.NewTierTable(map[string][]pricing.PriceRange{
			"X-Ray": {{MaxCases: 50, PricePerCase: dec("83.4")}},
			"ECG":   {{MaxCases: 50, PricePerCase: dec("40")}},
		}),
		decimal.Zero, decimal.Zero,
	)

	doc := EstimateDocument(Estimate{CompanyName: "Acme", Quote: q, GeneratedAt: generated})

	if len(doc.Body.Rows) != 2 || doc.Body.Rows[0][0] != "X-Ray" || doc.Body.Rows[0][1] != "12" {
		t.Fatalf("unexpected rows: %v", doc.Body.Rows)
	}
	// 12 × 83.4 + 5 × 40 = 1200.8, per case over 12 = 100.0666…
	want := []Row{{Label: "Grand Total", Value: "Rs. 1201"}, {Label: "Price per Case", Value: "Rs. 100"}}
	for i, r := range want {
		if doc.Totals[i] != r {
			t.Fatalf("totals[%d]: expected %+v, got %+v", i, r, doc.Totals[i])
		}
	}
}

func TestBillingDocumentFigures(t *testing.T) {
	summary := pricing.Summarize([]pricing.CostSummaryLine{
		pricing.SummaryLine(pricing.Package{Name: "Basic", Services: []string{"X-Ray", "ECG"}}, 20, dec("585"), dec("1.3")),
		pricing.SummaryLine(pricing.Package{Name: "Eye", Services: []string{"Vision"}}, 3, dec("100"), dec("3")),
	})

	doc := BillingDocument(Billing{
		BillingNumber: "U4RAD-20261015-000",
		CompanyName:   "Acme",
		CompanyState:  "MH",
		Camps:         []CampRow{{Location: "Pune", StartDate: generated, EndDate: generated}},
		Summary:       summary,
		GeneratedAt:   generated,
	})

	row := doc.Body.Rows[0]
	if row[1] != "X-Ray, ECG" || row[3] != "Rs. 450.00" || row[4] != "Rs. 9000.00" {
		t.Fatalf("unexpected first row: %v", row)
	}
	if got := doc.Body.Rows[1][3]; got != "Rs. 33.33" {
		t.Fatalf("expected unit price 33.33, got %s", got)
	}
	if got := doc.Totals[0].Value; got != "Rs. 9100.00" {
		t.Fatalf("expected grand total 9100.00, got %s", got)
	}
	if doc.Meta[2].Value != "MH" {
		t.Fatalf("expected address from non-empty parts, got %q", doc.Meta[2].Value)
	}
	if doc.Camps.Rows[0][3] != "15 Oct 2026" {
		t.Fatalf("unexpected camp date %q", doc.Camps.Rows[0][3])
	}
}

func TestRenderProducesPDF(t *testing.T) {
	var buf bytes.Buffer
	doc := BillingDocument(Billing{BillingNumber: "U4RAD-20261015-000", CompanyName: "Acme", GeneratedAt: generated})
	if err := Render(&buf, doc); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("estimate", "Acme Health Pvt.", generated); got != "estimate-acme-health-pvt--20261015.pdf" {
		t.Fatalf("unexpected filename %q", got)
	}
}
