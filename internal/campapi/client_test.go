package campapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestServiceCostsDecodesLeniently(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/service_costs/" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `[
			{"test_type_name":"X-Ray","salary":"100.50","incentive":10,"misc":"abc","equipment":null,"consumables":"5","reporting":" 2 "}
		]`)
	})

	costs, err := New(srv.URL).ServiceCosts(context.Background())
	if err != nil {
		t.Fatalf("service costs: %v", err)
	}
	if len(costs) != 1 {
		t.Fatalf("expected 1 cost, got %d", len(costs))
	}
	c := costs[0]
	if !c.Salary.Equal(decimal.RequireFromString("100.5")) || !c.Incentive.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected salary/incentive: %s %s", c.Salary, c.Incentive)
	}
	if !c.Misc.IsZero() || !c.Equipment.IsZero() {
		t.Fatalf("expected unparseable fields to decode as zero, got %s %s", c.Misc, c.Equipment)
	}
	if !c.Reporting.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected reporting 2, got %s", c.Reporting)
	}
}

func TestCatalogBuildsSortedTiers(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/service_costs/":
			io.WriteString(w, `[{"test_type_name":"CBC","salary":"20"}]`)
		case "/prices/":
			io.WriteString(w, `[{"name":"X-Ray","price_ranges":[{"max_cases":50,"price":"80"},{"max_cases":10,"price":100}]}]`)
		default:
			http.NotFound(w, r)
		}
	})

	catalog, tiers, err := New(srv.URL + "/").Catalog(context.Background())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if _, ok := catalog.Lookup("CBC"); !ok {
		t.Fatalf("expected CBC in catalog")
	}
	for _, tc := range []struct {
		cases int
		want  string
	}{{10, "100"}, {11, "80"}, {100, "0"}} {
		got, _ := tiers.PricePerCase("X-Ray", tc.cases)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("cases=%d: expected %s, got %s", tc.cases, tc.want, got)
		}
	}
}

func TestValidateCoupon(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/validate-coupon/CAMP10/" {
			io.WriteString(w, `{"code":"CAMP10","discount_percentage":10}`)
			return
		}
		http.Error(w, `{"error":"invalid coupon code"}`, http.StatusNotFound)
	})
	c := New(srv.URL)

	pct, err := c.ValidateCoupon(context.Background(), "CAMP10")
	if err != nil || !pct.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10, got %s (%v)", pct, err)
	}
	if _, err := c.ValidateCoupon(context.Background(), "NOPE"); !errors.Is(err, pricing.ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon, got %v", err)
	}
}

func TestTimeoutIsRecoverable(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).ServiceCosts(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCreateCostSummarySendsBearerAndBody(t *testing.T) {
	var got CostSummary
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/costsummaries" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got.ID = 7
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(got)
	})

	rec := CostSummary{
		BillingNumber:  "U4RAD-20261015-000",
		CompanyName:    "Acme",
		PackageDetails: []PackageLine{{PackageName: "Basic", TotalCase: 20, TotalPrice: NewAmount(decimal.NewFromInt(9000))}},
		GrandTotal:     NewAmount(decimal.NewFromInt(9000)),
	}
	saved, err := New(srv.URL, WithToken("tok")).CreateCostSummary(context.Background(), rec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if saved.ID != 7 || !saved.GrandTotal.Equal(decimal.NewFromInt(9000)) {
		t.Fatalf("unexpected saved record: %+v", saved)
	}
	if got.PackageDetails[0].PackageName != "Basic" {
		t.Fatalf("server saw %+v", got)
	}

	_, err = New(srv.URL).CreateCostSummary(context.Background(), rec)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if !strings.Contains(statusErr.Error(), "401") {
		t.Fatalf("expected status in message, got %q", statusErr.Error())
	}
}
