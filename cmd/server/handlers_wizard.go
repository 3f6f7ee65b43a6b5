package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/pricing"
	"github.com/u4rad/campcost/internal/report"
	"github.com/u4rad/campcost/internal/store"
	"github.com/u4rad/campcost/internal/wizard"
)

type packageView struct {
	PackageName      string          `json:"package_name"`
	Services         []string        `json:"services"`
	PathologyOptions []string        `json:"pathology_options,omitempty"`
	CasePerDay       int             `json:"case_per_day"`
	NumberOfDays     int             `json:"number_of_days"`
	TotalCase        int             `json:"total_case"`
	ReportType       string          `json:"report_type"`
	ReportTypeCost   decimal.Decimal `json:"report_type_cost"`
	TotalBaseCost    decimal.Decimal `json:"total_base_cost"`
	Travel           decimal.Decimal `json:"travel"`
	Stay             decimal.Decimal `json:"stay"`
	Food             decimal.Decimal `json:"food"`
	Overhead         decimal.Decimal `json:"overhead"`
	TPrice           decimal.Decimal `json:"tPrice"`
	Markup           decimal.Decimal `json:"markup"`
	Unpriced         []string        `json:"unpriced,omitempty"`
}

type wizardCompany struct {
	CompanyID       string `json:"company_id"`
	CompanyName     string `json:"company_name"`
	CompanyState    string `json:"company_state"`
	CompanyDistrict string `json:"company_district"`
	CompanyPincode  string `json:"company_pincode"`
	CompanyLandmark string `json:"company_landmark"`
	CompanyAddress  string `json:"company_address"`
}

type stateView struct {
	ID            string          `json:"id"`
	Flow          string          `json:"flow"`
	Step          string          `json:"step"`
	Company       wizardCompany   `json:"company"`
	Camps         []campapi.Camp  `json:"camps"`
	Packages      []packageView   `json:"packages"`
	PartnerMargin decimal.Decimal `json:"partner_margin"`
	Discount      decimal.Decimal `json:"discount"`
	CouponCode    string          `json:"coupon_code,omitempty"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func toCampSnapshots(camps []wizard.Camp) []store.CampSnapshot {
	return lo.Map(camps, func(c wizard.Camp, _ int) store.CampSnapshot {
		return store.CampSnapshot{
			Location:  c.Location,
			District:  c.District,
			State:     c.State,
			PinCode:   c.PinCode,
			Landmark:  c.Landmark,
			StartDate: formatDate(c.StartDate),
			EndDate:   formatDate(c.EndDate),
		}
	})
}

func toStateView(st wizard.State) stateView {
	c := st.Camp.Company
	view := stateView{
		ID:   st.ID,
		Flow: string(st.Flow),
		Step: st.Step.String(),
		Company: wizardCompany{
			CompanyID:       c.ID,
			CompanyName:     c.Name,
			CompanyState:    c.State,
			CompanyDistrict: c.District,
			CompanyPincode:  c.Pincode,
			CompanyLandmark: c.Landmark,
			CompanyAddress:  c.Address,
		},
		Camps: lo.Map(toCampSnapshots(st.Camp.Camps), func(c store.CampSnapshot, _ int) campapi.Camp {
			return campapi.Camp{
				CampLocation: c.Location,
				CampDistrict: c.District,
				CampState:    c.State,
				CampPinCode:  c.PinCode,
				CampLandmark: c.Landmark,
				StartDate:    c.StartDate,
				EndDate:      c.EndDate,
			}
		}),
		Packages:      make([]packageView, 0, len(st.Packages)),
		PartnerMargin: st.PartnerMargin,
		Discount:      st.Discount,
		CouponCode:    st.CouponCode,
	}
	for _, p := range st.Packages {
		view.Packages = append(view.Packages, packageView{
			PackageName:      p.Package.Name,
			Services:         p.Package.Services,
			PathologyOptions: p.Package.PathologyOptions,
			CasePerDay:       p.Cases.CasePerDay,
			NumberOfDays:     p.Cases.NumberOfDays,
			TotalCase:        p.Cases.TotalCase(),
			ReportType:       string(p.Cases.ReportType),
			ReportTypeCost:   p.Cases.ReportTypeCost(),
			TotalBaseCost:    p.Cost.TotalBaseCost,
			Travel:           p.Cost.Travel,
			Stay:             p.Cost.Stay,
			Food:             p.Cost.Food,
			Overhead:         p.Cost.Overhead,
			TPrice:           p.Cost.TPrice,
			Markup:           p.Markup,
			Unpriced:         p.Unpriced,
		})
	}
	return view
}

// wizardDo runs fn on the caller's wizard session and answers with the
// resulting state.
func (s *server) wizardDo(w http.ResponseWriter, r *http.Request, fn func(*wizard.Session) error) {
	id := sessionFrom(r.Context()).WizardID
	var st wizard.State
	err := s.wizards.Do(id, func(ws *wizard.Session) error {
		if err := fn(ws); err != nil {
			return err
		}
		st = ws.Snapshot()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateView(st))
}

func (s *server) handleWizardState(w http.ResponseWriter, r *http.Request) {
	s.wizardDo(w, r, func(*wizard.Session) error { return nil })
}

// handleWizardStart drops the caller's wizard session and opens a new one
// with a fresh token.
func (s *server) handleWizardStart(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.wizards.End(sess.WizardID)

	resp, err := s.startWizard(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type campDetailsRequest struct {
	wizardCompany
	Camps []campapi.Camp `json:"camps"`
}

func (s *server) handleWizardCamp(w http.ResponseWriter, r *http.Request) {
	var req campDetailsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	details := wizard.CampDetails{
		Company: wizard.Company{
			ID:       strings.TrimSpace(req.CompanyID),
			Name:     req.CompanyName,
			State:    strings.TrimSpace(req.CompanyState),
			District: strings.TrimSpace(req.CompanyDistrict),
			Pincode:  strings.TrimSpace(req.CompanyPincode),
			Landmark: strings.TrimSpace(req.CompanyLandmark),
			Address:  strings.TrimSpace(req.CompanyAddress),
		},
	}
	for _, c := range req.Camps {
		camp := wizard.Camp{
			Location: strings.TrimSpace(c.CampLocation),
			District: strings.TrimSpace(c.CampDistrict),
			State:    strings.TrimSpace(c.CampState),
			PinCode:  strings.TrimSpace(c.CampPinCode),
			Landmark: strings.TrimSpace(c.CampLandmark),
		}
		var err error
		if strings.TrimSpace(c.StartDate) != "" {
			if camp.StartDate, err = parseDate(c.StartDate, "startDate"); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if strings.TrimSpace(c.EndDate) != "" {
			if camp.EndDate, err = parseDate(c.EndDate, "endDate"); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		details.Camps = append(details.Camps, camp)
	}

	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.SubmitCampDetails(details)
	})
}

type selectionRequest struct {
	Services []string          `json:"services"`
	Packages []campapi.Package `json:"packages"`
}

func (s *server) handleWizardSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	selections := make([]pricing.Selection, 0, len(req.Services)+len(req.Packages))
	for _, name := range req.Services {
		selections = append(selections, pricing.Plain(name))
	}
	for _, p := range req.Packages {
		sel := pricing.Bundle(p.PackageName, p.Services...)
		sel.PathologyOptions = p.PathologyOptions
		selections = append(selections, sel)
	}

	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.SelectServices(selections)
	})
}

type caseRequest struct {
	CasePerDay   int    `json:"case_per_day"`
	NumberOfDays int    `json:"number_of_days"`
	ReportType   string `json:"report_type"`
}

// loadCatalog reads the cost catalog and the tier table from the store.
func (s *server) loadCatalog(ctx context.Context) (pricing.Catalog, pricing.TierTable, error) {
	costs, err := s.store.ServiceCosts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load service costs: %w", err)
	}
	tiers, err := s.store.TierTable(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load price table: %w", err)
	}
	return pricing.NewCatalog(costs), tiers, nil
}

// reportUnpriced logs and counts services that priced at zero.
func (s *server) reportUnpriced(ws *wizard.Session) {
	for _, p := range ws.Snapshot().Packages {
		if len(p.Unpriced) == 0 {
			continue
		}
		s.logger.Warn("services missing from cost catalog", "package", p.Package.Name, "services", p.Unpriced, "wizard_id", ws.ID())
		metrics.RecordUnpriced(p.Unpriced)
	}
}

func (s *server) handleWizardCases(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Packages map[string]caseRequest `json:"packages"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	cases := make(map[string]pricing.CaseInput, len(req.Packages))
	for name, c := range req.Packages {
		rt, err := pricing.ParseReportType(c.ReportType)
		if err != nil {
			s.writeError(w, r, fieldError("packages."+name+".report_type", err.Error()))
			return
		}
		cases[name] = pricing.CaseInput{CasePerDay: c.CasePerDay, NumberOfDays: c.NumberOfDays, ReportType: rt}
	}

	catalog, tiers, err := s.loadCatalog(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.wizardDo(w, r, func(ws *wizard.Session) error {
		if err := ws.SubmitCases(cases); err != nil {
			return err
		}
		ws.SetCatalog(catalog, tiers)
		s.reportUnpriced(ws)
		return nil
	})
}

// handleWizardCatalog reloads the catalog into the session, recomputing any
// base costs already derived.
func (s *server) handleWizardCatalog(w http.ResponseWriter, r *http.Request) {
	catalog, tiers, err := s.loadCatalog(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		ws.SetCatalog(catalog, tiers)
		s.reportUnpriced(ws)
		return nil
	})
}

// handleWizardAdditives edits travel, stay and food of a package. A field
// left out of the body keeps its current value.
func (s *server) handleWizardAdditives(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Travel numeric `json:"travel"`
		Stay   numeric `json:"stay"`
		Food   numeric `json:"food"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var edit wizard.AdditivesEdit
	var err error
	if edit.Travel, err = parseOptionalNonNegativeDecimal(req.Travel, "travel"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if edit.Stay, err = parseOptionalNonNegativeDecimal(req.Stay, "stay"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if edit.Food, err = parseOptionalNonNegativeDecimal(req.Food, "food"); err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg := chi.URLParam(r, "name")
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.EditAdditives(pkg, edit)
	})
}

func (s *server) handleWizardTPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TPrice numeric `json:"tPrice"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tPrice, err := parseNonNegativeDecimal(req.TPrice, "tPrice")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg := chi.URLParam(r, "name")
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.SetTPrice(pkg, tPrice)
	})
}

func (s *server) handleWizardConfirm(w http.ResponseWriter, r *http.Request) {
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.ConfirmCosts()
	})
}

func (s *server) handleWizardMarkup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Markup numeric `json:"markup"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	markup, err := parseDecimal(req.Markup, "markup")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	pkg := chi.URLParam(r, "name")
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.SetMarkup(pkg, markup)
	})
}

type summaryView struct {
	Packages   []campapi.PackageLine `json:"package_details"`
	GrandTotal decimal.Decimal       `json:"grand_total"`
}

func toSummaryView(sum pricing.Summary) summaryView {
	return summaryView{
		Packages:   lo.Map(sum.Lines, func(l pricing.CostSummaryLine, _ int) campapi.PackageLine { return campapi.FromSummaryLine(l) }),
		GrandTotal: sum.GrandTotal,
	}
}

func (s *server) handleWizardSummary(w http.ResponseWriter, r *http.Request) {
	var sum pricing.Summary
	err := s.wizards.Do(sessionFrom(r.Context()).WizardID, func(ws *wizard.Session) error {
		var err error
		sum, err = ws.Summary()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(sum))
}

func (s *server) handleWizardMargin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartnerMargin numeric `json:"partner_margin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pct, err := parseNonNegativeDecimal(req.PartnerMargin, "partner_margin")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		return ws.SetPartnerMargin(pct)
	})
}

func (s *server) handleWizardCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	pct, resolveErr := pricing.ResolveDiscount(r.Context(), s.store, req.Code)
	s.wizardDo(w, r, func(ws *wizard.Session) error {
		err := ws.ApplyDiscount(req.Code, pct, resolveErr)
		var verr *wizard.ValidationError
		switch {
		case err == nil:
			metrics.CouponValidations.WithLabelValues("valid").Inc()
		case errors.As(err, &verr):
			metrics.CouponValidations.WithLabelValues("invalid").Inc()
		case !errors.Is(err, wizard.ErrWrongStep):
			metrics.CouponValidations.WithLabelValues("error").Inc()
		}
		return err
	})
}

type quoteLineView struct {
	Service        string          `json:"service"`
	TotalCase      int             `json:"total_case"`
	Mode           string          `json:"mode"`
	PricePerCase   decimal.Decimal `json:"price_per_case"`
	ReportTypeCost decimal.Decimal `json:"report_type_cost"`
	Price          decimal.Decimal `json:"price"`
	TierMiss       bool            `json:"tier_miss,omitempty"`
}

type quoteView struct {
	Lines         []quoteLineView `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	PartnerMargin decimal.Decimal `json:"partner_margin"`
	Discount      decimal.Decimal `json:"discount"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	TotalCases    int             `json:"total_cases"`
	PerCasePrice  decimal.Decimal `json:"per_case_price"`
}

func toQuoteView(q pricing.Quote) quoteView {
	return quoteView{
		Lines: lo.Map(q.Lines, func(l pricing.QuoteLine, _ int) quoteLineView {
			return quoteLineView{
				Service:        l.Service,
				TotalCase:      l.TotalCase,
				Mode:           string(l.Mode),
				PricePerCase:   l.PricePerCase,
				ReportTypeCost: l.ReportTypeCost,
				Price:          l.Price,
				TierMiss:       l.TierMiss,
			}
		}),
		Subtotal:      q.Subtotal,
		PartnerMargin: q.PartnerMargin,
		Discount:      q.Discount,
		GrandTotal:    q.GrandTotal,
		TotalCases:    q.TotalCases,
		PerCasePrice:  q.PerCasePrice,
	}
}

func (s *server) handleWizardQuote(w http.ResponseWriter, r *http.Request) {
	var q pricing.Quote
	err := s.wizards.Do(sessionFrom(r.Context()).WizardID, func(ws *wizard.Session) error {
		var err error
		q, err = ws.Quote()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteView(q))
}

type finishResponse struct {
	EstimationID  string          `json:"estimation_id"`
	DownloadURL   string          `json:"download_url"`
	BillingNumber string          `json:"billing_number,omitempty"`
	CostSummaryID int64           `json:"cost_summary_id,omitempty"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Step          string          `json:"step"`
}

// handleWizardFinish persists the result of the pass, renders its PDF into
// object storage and resets the session to the login step. The pass is
// claimed under the session lock first, so a repeated finish is refused
// instead of persisting a second record.
func (s *server) handleWizardFinish(w http.ResponseWriter, r *http.Request) {
	id := sessionFrom(r.Context()).WizardID

	var (
		st    wizard.State
		sum   pricing.Summary
		quote pricing.Quote
	)
	err := s.wizards.Do(id, func(ws *wizard.Session) error {
		var err error
		if ws.Flow() == wizard.FlowCoordinator {
			sum, err = ws.Summary()
		} else {
			quote, err = ws.Quote()
		}
		if err != nil {
			return err
		}
		if err := ws.BeginFinish(); err != nil {
			return err
		}
		st = ws.Snapshot()
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.completePass(r.Context(), st, sum, quote)
	if err != nil {
		_ = s.wizards.Do(id, func(ws *wizard.Session) error {
			ws.AbortFinish()
			return nil
		})
		s.writeError(w, r, err)
		return
	}

	if err := s.wizards.Do(id, func(ws *wizard.Session) error { return ws.Finish() }); err != nil {
		s.logger.Warn("wizard session gone after finish", "wizard_id", id, "err", err)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// completePass stores the record of a claimed pass and its PDF.
func (s *server) completePass(ctx context.Context, st wizard.State, sum pricing.Summary, quote pricing.Quote) (finishResponse, error) {
	now := s.now()
	camps := lo.Map(st.Camp.Camps, func(c wizard.Camp, _ int) report.CampRow {
		return report.CampRow{Location: c.Location, District: c.District, State: c.State, StartDate: c.StartDate, EndDate: c.EndDate}
	})
	company := st.Camp.Company

	resp := finishResponse{Step: wizard.StepLogin.String()}
	var (
		doc  report.Document
		kind string
	)
	if st.Flow == wizard.FlowCoordinator {
		saved, err := s.saveCostSummary(ctx, store.BillingRecord{
			CompanyID:       company.ID,
			CompanyName:     company.Name,
			CompanyState:    company.State,
			CompanyDistrict: company.District,
			CompanyPincode:  company.Pincode,
			CompanyLandmark: company.Landmark,
			CompanyAddress:  company.Address,
			Camps:           toCampSnapshots(st.Camp.Camps),
			Packages: lo.Map(sum.Lines, func(l pricing.CostSummaryLine, _ int) store.PackageLine {
				return store.PackageLine{
					PackageName:      l.PackageName,
					Services:         l.Services,
					TotalCase:        l.TotalCase,
					TPrice:           l.TPrice,
					Markup:           l.Markup,
					RevisedUnitPrice: l.RevisedUnitPrice,
					TotalPrice:       l.TotalPrice,
				}
			}),
			GrandTotal: sum.GrandTotal,
		})
		if err != nil {
			return finishResponse{}, err
		}
		kind = "billing"
		doc = report.BillingDocument(report.Billing{
			BillingNumber:   saved.BillingNumber,
			CompanyName:     company.Name,
			CompanyAddress:  company.Address,
			CompanyDistrict: company.District,
			CompanyState:    company.State,
			CompanyPincode:  company.Pincode,
			Camps:           camps,
			Summary:         sum,
			GeneratedAt:     now,
		})
		resp.BillingNumber = saved.BillingNumber
		resp.CostSummaryID = saved.ID
		resp.GrandTotal = sum.GrandTotal
	} else {
		metrics.RecordTierMisses(quote.TierMisses())
		if _, err := s.store.CreateCompanyDetails(ctx, store.CompanyDetails{
			CompanyName:  company.Name,
			GrandTotal:   quote.GrandTotal,
			SuperCompany: st.CompanyName,
			Services: lo.Map(quote.Lines, func(l pricing.QuoteLine, _ int) store.ServiceTotal {
				return store.ServiceTotal{ServiceName: l.Service, TotalCases: l.TotalCase}
			}),
		}); err != nil {
			return finishResponse{}, err
		}
		kind = "estimate"
		doc = report.EstimateDocument(report.Estimate{
			CompanyName: company.Name,
			PreparedBy:  st.Username,
			Camps:       camps,
			Quote:       quote,
			GeneratedAt: now,
		})
		resp.GrandTotal = quote.GrandTotal
	}
	metrics.QuotesComputed.WithLabelValues(string(st.Flow)).Inc()

	estimationID, err := s.storeReport(ctx, kind, company.Name, doc)
	if err != nil {
		return finishResponse{}, err
	}
	resp.EstimationID = estimationID
	resp.DownloadURL = "/api/estimations/" + estimationID + "/pdf"
	return resp, nil
}

// storeReport renders doc, uploads it and records the estimation.
func (s *server) storeReport(ctx context.Context, kind, company string, doc report.Document) (string, error) {
	var buf bytes.Buffer
	if err := report.Render(&buf, doc); err != nil {
		return "", err
	}

	id := uuid.NewString()
	key := "estimations/" + id + "/" + report.Filename(kind, company, s.now())
	if err := s.objects.Put(ctx, key, "application/pdf", buf.Bytes()); err != nil {
		return "", fmt.Errorf("store %s pdf: %w", kind, err)
	}
	if err := s.store.CreateEstimation(ctx, store.Estimation{ID: id, CompanyName: company, Kind: kind, ObjectKey: key}); err != nil {
		return "", err
	}
	return id, nil
}
