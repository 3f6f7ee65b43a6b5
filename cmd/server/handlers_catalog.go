package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/pricing"
)

func (s *server) handleServiceCosts(w http.ResponseWriter, r *http.Request) {
	costs, err := s.store.ServiceCosts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]campapi.ServiceCost, 0, len(costs))
	for _, c := range costs {
		out = append(out, campapi.FromServiceCost(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type serviceCostRequest struct {
	TestTypeName string  `json:"test_type_name"`
	Salary       numeric `json:"salary"`
	Incentive    numeric `json:"incentive"`
	Misc         numeric `json:"misc"`
	Equipment    numeric `json:"equipment"`
	Consumables  numeric `json:"consumables"`
	Reporting    numeric `json:"reporting"`
}

func parseServiceCost(req serviceCostRequest) (pricing.ServiceCost, error) {
	c := pricing.ServiceCost{Name: strings.TrimSpace(req.TestTypeName)}
	if c.Name == "" {
		return c, fieldError("test_type_name", "is required")
	}

	var err error
	if c.Salary, err = parseNonNegativeDecimal(req.Salary, "salary"); err != nil {
		return c, err
	}
	if c.Incentive, err = parseNonNegativeDecimal(req.Incentive, "incentive"); err != nil {
		return c, err
	}
	if c.Misc, err = parseNonNegativeDecimal(req.Misc, "misc"); err != nil {
		return c, err
	}
	if c.Equipment, err = parseNonNegativeDecimal(req.Equipment, "equipment"); err != nil {
		return c, err
	}
	if c.Consumables, err = parseNonNegativeDecimal(req.Consumables, "consumables"); err != nil {
		return c, err
	}
	if c.Reporting, err = parseNonNegativeDecimal(req.Reporting, "reporting"); err != nil {
		return c, err
	}
	return c, nil
}

// handleUpsertServiceCost creates or replaces one catalog entry.
func (s *server) handleUpsertServiceCost(w http.ResponseWriter, r *http.Request) {
	var req serviceCostRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := parseServiceCost(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpsertServiceCost(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("service cost updated", "service", c.Name, "by", sessionFrom(r.Context()).Username)
	writeJSON(w, http.StatusOK, campapi.FromServiceCost(c))
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.PriceTable(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]campapi.PricedService, 0, len(services))
	for _, svc := range services {
		ranges := make([]campapi.PriceRange, 0, len(svc.Ranges))
		for _, pr := range svc.Ranges {
			ranges = append(ranges, campapi.PriceRange{MaxCases: pr.MaxCases, Price: campapi.NewAmount(pr.PricePerCase)})
		}
		out = append(out, campapi.PricedService{Name: svc.Name, PriceRanges: ranges})
	}
	writeJSON(w, http.StatusOK, out)
}

type priceRangeRequest struct {
	MaxCases int     `json:"max_cases"`
	Price    numeric `json:"price"`
}

// handleReplacePriceRanges replaces the volume tiers of one service.
func (s *server) handleReplacePriceRanges(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		s.writeError(w, r, fieldError("name", "is required"))
		return
	}
	var req struct {
		PriceRanges []priceRangeRequest `json:"price_ranges"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	ranges := make([]pricing.PriceRange, 0, len(req.PriceRanges))
	for _, pr := range req.PriceRanges {
		if pr.MaxCases <= 0 {
			s.writeError(w, r, fieldError("max_cases", "must be greater than 0"))
			return
		}
		price, err := parseNonNegativeDecimal(pr.Price, "price")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ranges = append(ranges, pricing.PriceRange{MaxCases: pr.MaxCases, PricePerCase: price})
	}

	if err := s.store.ReplacePriceRanges(r.Context(), name, ranges); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	pct, err := pricing.ResolveDiscount(r.Context(), s.store, code)
	if errors.Is(err, pricing.ErrInvalidCoupon) {
		metrics.CouponValidations.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusNotFound, errorBody{Error: "invalid coupon code"})
		return
	}
	if err != nil {
		metrics.CouponValidations.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	metrics.CouponValidations.WithLabelValues("valid").Inc()
	writeJSON(w, http.StatusOK, campapi.Coupon{Code: strings.TrimSpace(code), DiscountPercentage: campapi.NewAmount(pct)})
}

// handleUpsertCoupon creates or updates a coupon. Percentages must lie in (0, 100].
func (s *server) handleUpsertCoupon(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(chi.URLParam(r, "code"))
	var req struct {
		DiscountPercentage numeric `json:"discount_percentage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	pct, err := parsePercent(req.DiscountPercentage, "discount_percentage")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !pct.IsPositive() {
		s.writeError(w, r, fieldError("discount_percentage", "must be greater than 0"))
		return
	}
	if err := s.store.UpsertCoupon(r.Context(), code, pct); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campapi.Coupon{Code: code, DiscountPercentage: campapi.NewAmount(pct)})
}

type copyPriceResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	HardCopyPrice decimal.Decimal `json:"hard_copy_price"`
}

func (s *server) handleCopyPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := s.store.CopyPrices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]copyPriceResponse, 0, len(prices))
	for _, p := range prices {
		out = append(out, copyPriceResponse{ID: p.ID, Name: p.Name, HardCopyPrice: p.HardCopyPrice})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUpsertCopyPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string  `json:"name"`
		HardCopyPrice numeric `json:"hard_copy_price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, r, fieldError("name", "is required"))
		return
	}
	price, err := parseNonNegativeDecimal(req.HardCopyPrice, "hard_copy_price")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.UpsertCopyPrice(r.Context(), name, price); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, copyPriceResponse{Name: name, HardCopyPrice: price})
}
