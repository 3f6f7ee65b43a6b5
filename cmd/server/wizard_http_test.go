package main

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/u4rad/campcost/internal/campapi"
)

func campBody(company string) map[string]any {
	return map[string]any{
		"company_id":       "C-7",
		"company_name":     company,
		"company_state":    "Maharashtra",
		"company_district": "Pune",
		"company_pincode":  "411001",
		"company_address":  "12 MG Road",
		"camps": []map[string]string{{
			"campLocation": "Hinjewadi Phase 1",
			"campDistrict": "Pune",
			"campState":    "Maharashtra",
			"startDate":    "2026-11-02",
			"endDate":      "2026-11-04",
		}},
	}
}

func TestCoordinatorWizardFlow(t *testing.T) {
	env := newTestEnv(t)
	sess := env.login(t, coordinatorUser, coordinatorPassword)
	tok := sess.Token

	// Markup edits are rejected until costs are confirmed.
	env.mustStatus(t, env.request(t, http.MethodPut, "/api/wizard/packages/Basic/markup", tok, map[string]any{"markup": 1.3}), http.StatusConflict)

	rec := env.request(t, http.MethodPost, "/api/wizard/camp", tok, campBody("Infotech Pvt Ltd"))
	env.mustStatus(t, rec, http.StatusOK)
	if st := decodeAs[stateView](t, rec); st.Step != "service_selection" || len(st.Camps) != 1 || st.Camps[0].StartDate != "2026-11-02" {
		t.Fatalf("unexpected state after camp details %+v", st)
	}

	rec = env.request(t, http.MethodPost, "/api/wizard/selection", tok, map[string]any{
		"packages": []map[string]any{{"package_name": "Basic", "services": []string{"X-Ray", "ECG", "X-Ray"}}},
	})
	env.mustStatus(t, rec, http.StatusOK)

	rec = env.request(t, http.MethodPost, "/api/wizard/cases", tok, map[string]any{
		"packages": map[string]any{"Basic": map[string]any{"case_per_day": 20, "number_of_days": 3}},
	})
	env.mustStatus(t, rec, http.StatusOK)
	st := decodeAs[stateView](t, rec)
	if st.Step != "cost_calculation" || len(st.Packages) != 1 {
		t.Fatalf("unexpected state after cases %+v", st)
	}
	basic := st.Packages[0]
	if basic.TotalCase != 60 || !basic.TotalBaseCost.Equal(dec("460")) || !basic.TPrice.Equal(dec("897")) {
		t.Fatalf("unexpected package cost %+v", basic)
	}

	bad := env.request(t, http.MethodPut, "/api/wizard/packages/Basic/additives", tok, map[string]any{"travel": -5, "stay": 0, "food": 0})
	env.mustStatus(t, bad, http.StatusBadRequest)
	if body := decodeAs[errorBody](t, bad); body.Field != "travel" {
		t.Fatalf("expected travel field error, got %+v", body)
	}

	rec = env.request(t, http.MethodPut, "/api/wizard/packages/Basic/additives", tok, map[string]any{"travel": "100", "stay": 50, "food": 50})
	env.mustStatus(t, rec, http.StatusOK)
	if p := decodeAs[stateView](t, rec).Packages[0]; !p.TPrice.Equal(dec("1287")) || !p.Overhead.Equal(dec("990")) {
		t.Fatalf("unexpected cost after additives %+v", p)
	}

	env.mustStatus(t, env.request(t, http.MethodPut, "/api/wizard/packages/Nope/additives", tok, map[string]any{"travel": 0, "stay": 0, "food": 0}), http.StatusBadRequest)
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/confirm", tok, nil), http.StatusOK)
	env.mustStatus(t, env.request(t, http.MethodPut, "/api/wizard/packages/Basic/markup", tok, map[string]any{"markup": "1.3"}), http.StatusOK)

	rec = env.request(t, http.MethodGet, "/api/wizard/summary", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	sum := decodeAs[summaryView](t, rec)
	if len(sum.Packages) != 1 || !sum.Packages[0].RevisedUnitPrice.Equal(dec("990")) || !sum.GrandTotal.Equal(dec("59400")) {
		t.Fatalf("unexpected summary %+v", sum)
	}

	rec = env.request(t, http.MethodPost, "/api/wizard/finish", tok, nil)
	env.mustStatus(t, rec, http.StatusCreated)
	fin := decodeAs[finishResponse](t, rec)
	if fin.BillingNumber != "U4RAD-20261015-000" || fin.CostSummaryID == 0 || !fin.GrandTotal.Equal(dec("59400")) || fin.Step != "login" {
		t.Fatalf("unexpected finish response %+v", fin)
	}

	rec = env.request(t, http.MethodGet, fin.DownloadURL, tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a pdf download, got %q", rec.Header().Get("Content-Type"))
	}

	saved, err := env.srv.store.GetCostSummary(context.Background(), fin.CostSummaryID)
	if err != nil {
		t.Fatalf("load stored summary: %v", err)
	}
	if saved.CompanyName != "Infotech Pvt Ltd" || len(saved.Camps) != 1 || len(saved.Packages) != 1 || saved.Packages[0].TotalCase != 60 {
		t.Fatalf("unexpected stored summary %+v", saved)
	}

	// The session is back at login; a new pass needs a fresh start.
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/camp", tok, campBody("Other")), http.StatusConflict)
	rec = env.request(t, http.MethodPost, "/api/wizard/start", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	next := decodeAs[sessionResponse](t, rec)
	if next.WizardID == sess.WizardID {
		t.Fatalf("expected a new wizard session")
	}
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/camp", next.Token, campBody("Other")), http.StatusOK)
}

func TestCustomerWizardFlow(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.store.UpsertCoupon(context.Background(), "CAMP10", dec("10")); err != nil {
		t.Fatalf("seed coupon: %v", err)
	}
	sess := env.signupAndLogin(t, "clinic", "Sunrise Clinics")
	tok := sess.Token

	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/camp", tok, campBody("Acme Steel")), http.StatusOK)
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/selection", tok, map[string]any{"services": []string{"X-Ray", "CBC"}}), http.StatusOK)

	rec := env.request(t, http.MethodPost, "/api/wizard/cases", tok, map[string]any{
		"packages": map[string]any{
			"X-Ray": map[string]any{"case_per_day": 40, "number_of_days": 3},
			"CBC":   map[string]any{"case_per_day": 40, "number_of_days": 3},
		},
	})
	env.mustStatus(t, rec, http.StatusOK)
	if st := decodeAs[stateView](t, rec); st.Step != "simple_cost_calculation" {
		t.Fatalf("expected simple cost step, got %q", st.Step)
	}

	rec = env.request(t, http.MethodGet, "/api/wizard/quote", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	q := decodeAs[quoteView](t, rec)
	if !q.Subtotal.Equal(dec("54000")) || len(q.Lines) != 2 {
		t.Fatalf("unexpected quote %+v", q)
	}
	for _, l := range q.Lines {
		switch l.Service {
		case "X-Ray":
			if l.Mode != "tiered" || !l.Price.Equal(dec("45600")) {
				t.Fatalf("unexpected X-Ray line %+v", l)
			}
		case "CBC":
			if l.Mode != "flat" || !l.Price.Equal(dec("8400")) {
				t.Fatalf("unexpected CBC line %+v", l)
			}
		}
	}

	env.mustStatus(t, env.request(t, http.MethodPut, "/api/wizard/margin", tok, map[string]any{"partner_margin": 10}), http.StatusOK)
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/coupon", tok, map[string]any{"code": "CAMP10"}), http.StatusOK)

	rec = env.request(t, http.MethodGet, "/api/wizard/quote", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	q = decodeAs[quoteView](t, rec)
	if !q.GrandTotal.Equal(dec("53460")) || q.TotalCases != 120 || !q.PerCasePrice.Equal(dec("445.5")) {
		t.Fatalf("unexpected discounted quote %+v", q)
	}

	bad := env.request(t, http.MethodPost, "/api/wizard/coupon", tok, map[string]any{"code": "BOGUS"})
	env.mustStatus(t, bad, http.StatusBadRequest)
	if body := decodeAs[errorBody](t, bad); body.Field != "coupon" {
		t.Fatalf("expected coupon field error, got %+v", body)
	}
	rec = env.request(t, http.MethodGet, "/api/wizard/", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	if st := decodeAs[stateView](t, rec); !st.Discount.IsZero() || st.CouponCode != "" {
		t.Fatalf("expected discount reset after invalid coupon, got %+v", st)
	}

	// Coordinator-only endpoints stay closed to this flow.
	env.mustStatus(t, env.request(t, http.MethodGet, "/api/wizard/summary", tok, nil), http.StatusConflict)

	rec = env.request(t, http.MethodPost, "/api/wizard/finish", tok, nil)
	env.mustStatus(t, rec, http.StatusCreated)
	fin := decodeAs[finishResponse](t, rec)
	if fin.BillingNumber != "" || !fin.GrandTotal.Equal(dec("59400")) || fin.EstimationID == "" {
		t.Fatalf("unexpected finish response %+v", fin)
	}

	rec = env.request(t, http.MethodGet, "/api/company-details/", tok, nil)
	env.mustStatus(t, rec, http.StatusOK)
	details := decodeAs[[]companyDetailsResponse](t, rec)
	if len(details) != 1 || details[0].CompanyName != "Acme Steel" || details[0].SuperCompany != "Sunrise Clinics" || len(details[0].Services) != 2 {
		t.Fatalf("unexpected company details %+v", details)
	}

	env.mustStatus(t, env.request(t, http.MethodGet, fin.DownloadURL, tok, nil), http.StatusOK)
}

func TestWizardCampValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, coordinatorUser, coordinatorPassword).Token

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{name: "malformed json", body: `{"company_name":`, field: "body"},
		{name: "missing company", body: campBody("  "), field: "company_name"},
		{name: "no camps", body: map[string]any{"company_name": "X"}, field: "camps"},
		{name: "bad date", body: map[string]any{
			"company_name": "X",
			"camps":        []campapi.Camp{{CampLocation: "Here", StartDate: "02/11/2026", EndDate: "2026-11-03"}},
		}, field: "startDate"},
		{name: "end before start", body: map[string]any{
			"company_name": "X",
			"camps":        []campapi.Camp{{CampLocation: "Here", StartDate: "2026-11-05", EndDate: "2026-11-03"}},
		}, field: "camps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, http.MethodPost, "/api/wizard/camp", tok, tt.body)
			env.mustStatus(t, rec, http.StatusBadRequest)
			if body := decodeAs[errorBody](t, rec); body.Field != tt.field {
				t.Fatalf("expected field %q, got %+v", tt.field, body)
			}
		})
	}
}

func TestWizardUnpricedServiceStaysNumeric(t *testing.T) {
	env := newTestEnv(t)
	tok := env.login(t, coordinatorUser, coordinatorPassword).Token

	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/camp", tok, campBody("Acme")), http.StatusOK)
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/selection", tok, map[string]any{
		"packages": []map[string]any{{"package_name": "Mixed", "services": []string{"ECG", "Bone Density"}}},
	}), http.StatusOK)

	rec := env.request(t, http.MethodPost, "/api/wizard/cases", tok, map[string]any{
		"packages": map[string]any{"Mixed": map[string]any{"case_per_day": 10, "number_of_days": 1, "report_type": "hard copy"}},
	})
	env.mustStatus(t, rec, http.StatusOK)
	p := decodeAs[stateView](t, rec).Packages[0]
	if !p.TotalBaseCost.Equal(dec("140")) || len(p.Unpriced) != 1 || p.Unpriced[0] != "Bone Density" {
		t.Fatalf("unexpected package %+v", p)
	}
	if !p.ReportTypeCost.Equal(dec("250")) {
		t.Fatalf("expected hard copy surcharge 250, got %s", p.ReportTypeCost)
	}
}

// coordinatorAtCostStep walks a coordinator through to cost calculation
// with a Basic package of X-Ray and ECG at 20 cases a day for 3 days.
func (e *testEnv) coordinatorAtCostStep(t *testing.T) string {
	t.Helper()
	tok := e.login(t, coordinatorUser, coordinatorPassword).Token
	e.mustStatus(t, e.request(t, http.MethodPost, "/api/wizard/camp", tok, campBody("Infotech Pvt Ltd")), http.StatusOK)
	e.mustStatus(t, e.request(t, http.MethodPost, "/api/wizard/selection", tok, map[string]any{
		"packages": []map[string]any{{"package_name": "Basic", "services": []string{"X-Ray", "ECG"}}},
	}), http.StatusOK)
	e.mustStatus(t, e.request(t, http.MethodPost, "/api/wizard/cases", tok, map[string]any{
		"packages": map[string]any{"Basic": map[string]any{"case_per_day": 20, "number_of_days": 3}},
	}), http.StatusOK)
	return tok
}

func TestWizardAdditivesPartialEdit(t *testing.T) {
	env := newTestEnv(t)
	tok := env.coordinatorAtCostStep(t)

	rec := env.request(t, http.MethodPut, "/api/wizard/packages/Basic/additives", tok, map[string]any{"travel": 100})
	env.mustStatus(t, rec, http.StatusOK)
	p := decodeAs[stateView](t, rec).Packages[0]
	if !p.Travel.Equal(dec("100")) || !p.Stay.IsZero() || !p.Food.IsZero() || !p.TPrice.Equal(dec("1092")) {
		t.Fatalf("unexpected cost after travel-only edit %+v", p)
	}

	rec = env.request(t, http.MethodPut, "/api/wizard/packages/Basic/additives", tok, map[string]any{"food": "25"})
	env.mustStatus(t, rec, http.StatusOK)
	p = decodeAs[stateView](t, rec).Packages[0]
	if !p.Travel.Equal(dec("100")) || !p.Food.Equal(dec("25")) || !p.TPrice.Equal(dec("1140.75")) {
		t.Fatalf("expected travel kept and food set, got %+v", p)
	}

	bad := env.request(t, http.MethodPut, "/api/wizard/packages/Basic/additives", tok, map[string]any{"stay": -1})
	env.mustStatus(t, bad, http.StatusBadRequest)
	if body := decodeAs[errorBody](t, bad); body.Field != "stay" {
		t.Fatalf("expected stay field error, got %+v", body)
	}
}

func TestWizardConcurrentFinishStoresOneRecord(t *testing.T) {
	env := newTestEnv(t)
	tok := env.coordinatorAtCostStep(t)
	env.mustStatus(t, env.request(t, http.MethodPost, "/api/wizard/confirm", tok, nil), http.StatusOK)

	const callers = 8
	codes := make([]int, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			codes[i] = env.request(t, http.MethodPost, "/api/wizard/finish", tok, nil).Code
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected finish status %d in %v", code, codes)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one finish to succeed, got %v", codes)
	}

	records, err := env.srv.store.ListCostSummaries(context.Background(), "")
	if err != nil {
		t.Fatalf("list cost summaries: %v", err)
	}
	if len(records) != 1 || records[0].BillingNumber != "U4RAD-20261015-000" {
		t.Fatalf("expected one billing record, got %+v", records)
	}
}

func TestWizardIdleSessionExpires(t *testing.T) {
	env := newTestEnv(t)
	now := testNow
	env.srv.wizards.IdleTimeout = time.Hour
	env.srv.wizards.Clock = func() time.Time { return now }

	tok := env.login(t, coordinatorUser, coordinatorPassword).Token
	env.mustStatus(t, env.request(t, http.MethodGet, "/api/wizard/", tok, nil), http.StatusOK)

	now = now.Add(2 * time.Hour)
	env.mustStatus(t, env.request(t, http.MethodGet, "/api/wizard/", tok, nil), http.StatusNotFound)
	if env.srv.wizards.Len() != 0 {
		t.Fatalf("expected the idle session evicted, got %d", env.srv.wizards.Len())
	}
}
