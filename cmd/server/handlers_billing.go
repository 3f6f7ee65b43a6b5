package main

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/auth"
	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/store"
)

func toWireSummary(rec store.BillingRecord) campapi.CostSummary {
	camps := lo.Map(rec.Camps, func(c store.CampSnapshot, _ int) campapi.Camp {
		return campapi.Camp{
			CampLocation: c.Location,
			CampDistrict: c.District,
			CampState:    c.State,
			CampPinCode:  c.PinCode,
			CampLandmark: c.Landmark,
			StartDate:    c.StartDate,
			EndDate:      c.EndDate,
		}
	})
	lines := lo.Map(rec.Packages, func(p store.PackageLine, _ int) campapi.PackageLine {
		return campapi.PackageLine{
			PackageName:      p.PackageName,
			Services:         p.Services,
			TotalCase:        p.TotalCase,
			TPrice:           campapi.NewAmount(p.TPrice),
			Markup:           campapi.NewAmount(p.Markup),
			RevisedUnitPrice: campapi.NewAmount(p.RevisedUnitPrice),
			TotalPrice:       campapi.NewAmount(p.TotalPrice),
		}
	})
	out := campapi.CostSummary{
		ID:              rec.ID,
		BillingNumber:   rec.BillingNumber,
		CompanyID:       rec.CompanyID,
		CompanyName:     rec.CompanyName,
		CompanyState:    rec.CompanyState,
		CompanyDistrict: rec.CompanyDistrict,
		CompanyPincode:  rec.CompanyPincode,
		CompanyLandmark: rec.CompanyLandmark,
		CompanyAddress:  rec.CompanyAddress,
		CampDetails:     camps,
		PackageDetails:  lines,
		GrandTotal:      campapi.NewAmount(rec.GrandTotal),
	}
	if !rec.CreatedAt.IsZero() {
		created := rec.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

func fromWireSummary(in campapi.CostSummary) store.BillingRecord {
	return store.BillingRecord{
		CompanyID:       strings.TrimSpace(in.CompanyID),
		BillingNumber:   strings.TrimSpace(in.BillingNumber),
		CompanyName:     strings.TrimSpace(in.CompanyName),
		CompanyState:    in.CompanyState,
		CompanyDistrict: in.CompanyDistrict,
		CompanyPincode:  in.CompanyPincode,
		CompanyLandmark: in.CompanyLandmark,
		CompanyAddress:  in.CompanyAddress,
		Camps: lo.Map(in.CampDetails, func(c campapi.Camp, _ int) store.CampSnapshot {
			return store.CampSnapshot{
				Location:  c.CampLocation,
				District:  c.CampDistrict,
				State:     c.CampState,
				PinCode:   c.CampPinCode,
				Landmark:  c.CampLandmark,
				StartDate: c.StartDate,
				EndDate:   c.EndDate,
			}
		}),
		Packages: lo.Map(in.PackageDetails, func(p campapi.PackageLine, _ int) store.PackageLine {
			return store.PackageLine{
				PackageName:      p.PackageName,
				Services:         p.Services,
				TotalCase:        p.TotalCase,
				TPrice:           p.TPrice.Decimal,
				Markup:           p.Markup.Decimal,
				RevisedUnitPrice: p.RevisedUnitPrice.Decimal,
				TotalPrice:       p.TotalPrice.Decimal,
			}
		}),
		GrandTotal: in.GrandTotal.Decimal,
	}
}

// saveCostSummary stores rec, numbering it from the billing counter when it
// carries no billing number.
func (s *server) saveCostSummary(ctx context.Context, rec store.BillingRecord) (store.BillingRecord, error) {
	var (
		saved store.BillingRecord
		err   error
	)
	if rec.BillingNumber == "" {
		saved, err = s.store.CreateNumberedCostSummary(ctx, rec, s.billing.Format)
	} else {
		saved, err = s.store.CreateCostSummary(ctx, rec)
	}
	if err != nil {
		return store.BillingRecord{}, err
	}
	metrics.BillingRecordsCreated.Inc()
	s.logger.Info("cost summary stored", "billing_number", saved.BillingNumber, "company", saved.CompanyName, "grand_total", saved.GrandTotal.StringFixed(2))
	return saved, nil
}

func (s *server) handleCreateCostSummary(w http.ResponseWriter, r *http.Request) {
	var req campapi.CostSummary
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rec := fromWireSummary(req)
	if rec.CompanyName == "" {
		s.writeError(w, r, fieldError("company_name", "is required"))
		return
	}

	saved, err := s.saveCostSummary(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWireSummary(saved))
}

func (s *server) handleListCostSummaries(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListCostSummaries(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(records, func(rec store.BillingRecord, _ int) campapi.CostSummary {
		return toWireSummary(rec)
	}))
}

func (s *server) handleGetCostSummary(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.GetCostSummary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWireSummary(rec))
}

type serviceTotalBody struct {
	ServiceName string `json:"service_name"`
	TotalCases  int    `json:"total_cases"`
}

type companyDetailsBody struct {
	ID           int64              `json:"id,omitempty"`
	CompanyName  string             `json:"company_name"`
	GrandTotal   numeric            `json:"grand_total"`
	SuperCompany string             `json:"super_company"`
	Services     []serviceTotalBody `json:"services"`
}

type companyDetailsResponse struct {
	ID           int64              `json:"id"`
	CompanyName  string             `json:"company_name"`
	GrandTotal   decimal.Decimal    `json:"grand_total"`
	SuperCompany string             `json:"super_company"`
	Services     []serviceTotalBody `json:"services"`
	CreatedAt    time.Time          `json:"created_at"`
}

func toCompanyDetailsResponse(d store.CompanyDetails, _ int) companyDetailsResponse {
	return companyDetailsResponse{
		ID:           d.ID,
		CompanyName:  d.CompanyName,
		GrandTotal:   d.GrandTotal,
		SuperCompany: d.SuperCompany,
		Services: lo.Map(d.Services, func(st store.ServiceTotal, _ int) serviceTotalBody {
			return serviceTotalBody{ServiceName: st.ServiceName, TotalCases: st.TotalCases}
		}),
		CreatedAt: d.CreatedAt,
	}
}

// handleCreateCompanyDetails stores a customer estimate. The submitting
// user's company is recorded as the super company unless one is given.
func (s *server) handleCreateCompanyDetails(w http.ResponseWriter, r *http.Request) {
	var req companyDetailsBody
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CompanyName) == "" {
		s.writeError(w, r, fieldError("company_name", "is required"))
		return
	}
	total, err := parseNonNegativeDecimal(req.GrandTotal, "grand_total")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	super := strings.TrimSpace(req.SuperCompany)
	if super == "" {
		super = sessionFrom(r.Context()).CompanyName
	}

	d, err := s.store.CreateCompanyDetails(r.Context(), store.CompanyDetails{
		CompanyName:  strings.TrimSpace(req.CompanyName),
		GrandTotal:   total,
		SuperCompany: super,
		Services: lo.Map(req.Services, func(st serviceTotalBody, _ int) store.ServiceTotal {
			return store.ServiceTotal{ServiceName: st.ServiceName, TotalCases: max(st.TotalCases, 0)}
		}),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanyDetailsResponse(d, 0))
}

// handleListCompanyDetails lists customer estimates. Customers only see the
// estimates of their own company.
func (s *server) handleListCompanyDetails(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	super := strings.TrimSpace(r.URL.Query().Get("super_company"))
	if sess.Role != auth.RoleCoordinator {
		if sess.CompanyName == "" {
			writeJSON(w, http.StatusOK, []companyDetailsResponse{})
			return
		}
		super = sess.CompanyName
	}

	details, err := s.store.ListCompanyDetails(r.Context(), super)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(details, toCompanyDetailsResponse))
}

func (s *server) handleDownloadEstimation(w http.ResponseWriter, r *http.Request) {
	e, err := s.store.GetEstimation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := s.objects.Get(r.Context(), e.ObjectKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(e.ObjectKey)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
