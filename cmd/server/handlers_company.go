package main

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/pricing"
	"github.com/u4rad/campcost/internal/store"
)

const dateLayout = "2006-01-02"

type companyRequest struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name"`
	District string `json:"district"`
	State    string `json:"state"`
	PinCode  string `json:"pin_code"`
	Landmark string `json:"landmark"`
}

func (s *server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, fieldError("name", "is required"))
		return
	}

	c, err := s.store.CreateCompany(r.Context(), store.Company{
		Name:     strings.TrimSpace(req.Name),
		District: strings.TrimSpace(req.District),
		State:    strings.TrimSpace(req.State),
		PinCode:  strings.TrimSpace(req.PinCode),
		Landmark: strings.TrimSpace(req.Landmark),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, companyRequest{ID: c.ID, Name: c.Name, District: c.District, State: c.State, PinCode: c.PinCode, Landmark: c.Landmark})
}

type campRequest struct {
	ID        int64  `json:"id,omitempty"`
	CompanyID int64  `json:"company_id"`
	Location  string `json:"location"`
	District  string `json:"district"`
	State     string `json:"state"`
	PinCode   string `json:"pin_code"`
	Landmark  string `json:"landmark"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func parseDate(raw, field string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fieldError(field, "must be a date in YYYY-MM-DD format")
	}
	return t, nil
}

func (s *server) handleCreateCamp(w http.ResponseWriter, r *http.Request) {
	var req campRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CompanyID <= 0 {
		s.writeError(w, r, fieldError("company_id", "is required"))
		return
	}
	if strings.TrimSpace(req.Location) == "" {
		s.writeError(w, r, fieldError("location", "is required"))
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if end.Before(start) {
		s.writeError(w, r, fieldError("end_date", "must not be before start_date"))
		return
	}

	c, err := s.store.CreateCamp(r.Context(), store.Camp{
		CompanyID: req.CompanyID,
		Location:  strings.TrimSpace(req.Location),
		District:  strings.TrimSpace(req.District),
		State:     strings.TrimSpace(req.State),
		PinCode:   strings.TrimSpace(req.PinCode),
		Landmark:  strings.TrimSpace(req.Landmark),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req.ID = c.ID
	req.StartDate = c.StartDate.Format(dateLayout)
	req.EndDate = c.EndDate.Format(dateLayout)
	writeJSON(w, http.StatusCreated, req)
}

func toWireSelection(sel store.ServiceSelection) campapi.ServiceSelection {
	pkgs := make([]campapi.Package, 0, len(sel.Packages))
	for _, p := range sel.Packages {
		pkgs = append(pkgs, campapi.Package{PackageName: p.PackageName, Services: p.Services, PathologyOptions: p.PathologyOptions})
	}
	return campapi.ServiceSelection{CompanyID: sel.CompanyID, Packages: pkgs}
}

func (s *server) handleListServiceSelections(w http.ResponseWriter, r *http.Request) {
	selections, err := s.store.ServiceSelections(r.Context(), strings.TrimSpace(r.URL.Query().Get("company_id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := lo.Map(selections, func(sel store.ServiceSelection, _ int) campapi.ServiceSelection {
		return toWireSelection(sel)
	})
	writeJSON(w, http.StatusOK, out)
}

// handleReplaceServiceSelection normalises the submitted packages and
// replaces the company's stored selection.
func (s *server) handleReplaceServiceSelection(w http.ResponseWriter, r *http.Request) {
	var req campapi.ServiceSelection
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	companyID := strings.TrimSpace(req.CompanyID)
	if companyID == "" {
		s.writeError(w, r, fieldError("company_id", "is required"))
		return
	}

	selections := make([]pricing.Selection, 0, len(req.Packages))
	for _, p := range req.Packages {
		sel := pricing.Bundle(p.PackageName, p.Services...)
		sel.PathologyOptions = p.PathologyOptions
		selections = append(selections, sel)
	}
	pkgs, err := pricing.ResolveSelections(selections)
	if err != nil {
		s.writeError(w, r, fieldError("packages", err.Error()))
		return
	}

	sel, err := s.store.ReplaceServiceSelection(r.Context(), companyID, store.SelectedPackages(pkgs))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWireSelection(sel))
}

type testDataRequest struct {
	CompanyID    int64  `json:"company_id"`
	PackageName  string `json:"package_name"`
	ServiceName  string `json:"service_name"`
	CasePerDay   int    `json:"case_per_day"`
	NumberOfDays int    `json:"number_of_days"`
	ReportType   string `json:"report_type"`
}

type testDataResponse struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	PackageName    string          `json:"package_name"`
	ServiceName    string          `json:"service_name"`
	CasePerDay     int             `json:"case_per_day"`
	NumberOfDays   int             `json:"number_of_days"`
	TotalCase      int             `json:"total_case"`
	ReportType     string          `json:"report_type"`
	ReportTypeCost decimal.Decimal `json:"report_type_cost"`
	CreatedAt      time.Time       `json:"created_at"`
}

func toTestDataResponse(d store.TestData, _ int) testDataResponse {
	return testDataResponse{
		ID:             d.ID,
		CompanyID:      d.CompanyID,
		PackageName:    d.PackageName,
		ServiceName:    d.ServiceName,
		CasePerDay:     d.CasePerDay,
		NumberOfDays:   d.NumberOfDays,
		TotalCase:      d.TotalCase,
		ReportType:     string(d.ReportType),
		ReportTypeCost: d.ReportTypeCost,
		CreatedAt:      d.CreatedAt,
	}
}

// handleSaveTestData stores per-service case volumes. Totals and hard copy
// costs are derived server side.
func (s *server) handleSaveTestData(w http.ResponseWriter, r *http.Request) {
	var req []testDataRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req) == 0 {
		s.writeError(w, r, fieldError("body", "at least one row is required"))
		return
	}

	rows := make([]store.TestData, 0, len(req))
	for _, row := range req {
		if row.CompanyID <= 0 {
			s.writeError(w, r, fieldError("company_id", "is required"))
			return
		}
		if strings.TrimSpace(row.ServiceName) == "" {
			s.writeError(w, r, fieldError("service_name", "is required"))
			return
		}
		if row.CasePerDay <= 0 || row.NumberOfDays <= 0 {
			s.writeError(w, r, fieldError("case_per_day", "cases per day and number of days must be greater than 0"))
			return
		}
		rt, err := pricing.ParseReportType(row.ReportType)
		if err != nil {
			s.writeError(w, r, fieldError("report_type", err.Error()))
			return
		}
		rows = append(rows, store.TestData{
			CompanyID:    row.CompanyID,
			PackageName:  strings.TrimSpace(row.PackageName),
			ServiceName:  strings.TrimSpace(row.ServiceName),
			CasePerDay:   row.CasePerDay,
			NumberOfDays: row.NumberOfDays,
			ReportType:   rt,
		})
	}

	saved, err := s.store.SaveTestData(r.Context(), rows)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lo.Map(saved, toTestDataResponse))
}

func (s *server) testDataFilter(r *http.Request) (store.TestDataFilter, error) {
	q := r.URL.Query()
	f := store.TestDataFilter{PackageName: strings.TrimSpace(q.Get("package_name"))}
	if raw := q.Get("company_id"); raw != "" {
		id, err := parseID(raw, "company_id")
		if err != nil {
			return f, err
		}
		f.CompanyID = id
	}
	return f, nil
}

func (s *server) handleListTestData(w http.ResponseWriter, r *http.Request) {
	f, err := s.testDataFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.store.ListTestData(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(rows, toTestDataResponse))
}

type packageTestData struct {
	PackageName string             `json:"package_name"`
	Rows        []testDataResponse `json:"rows"`
}

// handleTestDataByPackage groups case rows by package name.
func (s *server) handleTestDataByPackage(w http.ResponseWriter, r *http.Request) {
	f, err := s.testDataFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.store.ListTestData(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	grouped := lo.GroupBy(lo.Map(rows, toTestDataResponse), func(d testDataResponse) string { return d.PackageName })
	names := lo.Keys(grouped)
	slices.Sort(names)

	out := make([]packageTestData, 0, len(names))
	for _, name := range names {
		out = append(out, packageTestData{PackageName: name, Rows: grouped[name]})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSaveCostDetails upserts the travel, stay, food and total of each package.
func (s *server) handleSaveCostDetails(w http.ResponseWriter, r *http.Request) {
	var req campapi.CostDetails
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CompanyID <= 0 {
		s.writeError(w, r, fieldError("company_id", "is required"))
		return
	}
	if len(req.Packages) == 0 {
		s.writeError(w, r, fieldError("packages", "at least one package is required"))
		return
	}

	pkgs := make([]store.PackageCostDetail, 0, len(req.Packages))
	for _, p := range req.Packages {
		if strings.TrimSpace(p.PackageName) == "" {
			s.writeError(w, r, fieldError("package_name", "is required"))
			return
		}
		pkgs = append(pkgs, store.PackageCostDetail{
			PackageName: strings.TrimSpace(p.PackageName),
			Services:    p.Services,
			Travel:      p.Travel.Decimal,
			Stay:        p.Stay.Decimal,
			Food:        p.Food.Decimal,
			TotalCost:   p.TotalCost.Decimal,
		})
	}

	if err := s.store.SaveCostDetails(r.Context(), req.CompanyID, pkgs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type costDetailResponse struct {
	CompanyID   int64           `json:"company_id"`
	PackageName string          `json:"package_name"`
	ServiceName string          `json:"service_name"`
	Travel      decimal.Decimal `json:"travel"`
	Stay        decimal.Decimal `json:"stay"`
	Food        decimal.Decimal `json:"food"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

func (s *server) handleListCostDetails(w http.ResponseWriter, r *http.Request) {
	var companyID int64
	if raw := r.URL.Query().Get("company_id"); raw != "" {
		id, err := parseID(raw, "company_id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		companyID = id
	}

	details, err := s.store.CostDetails(r.Context(), companyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := lo.Map(details, func(d store.CostDetail, _ int) costDetailResponse {
		return costDetailResponse{
			CompanyID:   d.CompanyID,
			PackageName: d.PackageName,
			ServiceName: d.ServiceName,
			Travel:      d.Travel,
			Stay:        d.Stay,
			Food:        d.Food,
			TotalCost:   d.TotalCost,
		}
	})
	writeJSON(w, http.StatusOK, out)
}
