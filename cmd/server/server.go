package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/u4rad/campcost/internal/auth"
	"github.com/u4rad/campcost/internal/campapi"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/pricing"
	"github.com/u4rad/campcost/internal/storage"
	"github.com/u4rad/campcost/internal/store"
	"github.com/u4rad/campcost/internal/wizard"
)

type server struct {
	store   *store.Store
	auth    *auth.Service
	tokens  *auth.TokenIssuer
	wizards *wizard.Manager
	billing *pricing.BillingNumberer
	objects storage.ObjectStore
	logger  *slog.Logger
	origins []string
	now     func() time.Time
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/users/", s.handleSignup)

		r.Get("/service_costs/", s.handleServiceCosts)
		r.Get("/prices/", s.handlePrices)
		r.Get("/validate-coupon/{code}/", s.handleValidateCoupon)
		r.Get("/copyprice/", s.handleCopyPrices)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout", s.handleLogout)

			r.Post("/companies/", s.handleCreateCompany)
			r.Post("/camps/", s.handleCreateCamp)
			r.Get("/service-selection/", s.handleListServiceSelections)
			r.Post("/service-selection/", s.handleReplaceServiceSelection)
			r.Get("/test-case-data/", s.handleListTestData)
			r.Post("/test-case-data/", s.handleSaveTestData)
			r.Get("/test-case-data/by_package", s.handleTestDataByPackage)
			r.Get("/cost_details/", s.handleListCostDetails)
			r.Post("/cost_details/", s.handleSaveCostDetails)
			r.Get("/costsummaries", s.handleListCostSummaries)
			r.Post("/costsummaries", s.handleCreateCostSummary)
			r.Get("/costsummaries/{id}", s.handleGetCostSummary)
			r.Get("/company-details/", s.handleListCompanyDetails)
			r.Post("/company-details/", s.handleCreateCompanyDetails)
			r.Get("/estimations/{id}/pdf", s.handleDownloadEstimation)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleCoordinator))
				r.Put("/service_costs/", s.handleUpsertServiceCost)
				r.Put("/prices/{name}", s.handleReplacePriceRanges)
				r.Put("/coupons/{code}", s.handleUpsertCoupon)
				r.Put("/copyprice/", s.handleUpsertCopyPrice)
			})

			r.Route("/wizard", func(r chi.Router) {
				r.Get("/", s.handleWizardState)
				r.Post("/start", s.handleWizardStart)
				r.Post("/camp", s.handleWizardCamp)
				r.Post("/selection", s.handleWizardSelection)
				r.Post("/cases", s.handleWizardCases)
				r.Post("/catalog", s.handleWizardCatalog)
				r.Put("/packages/{name}/additives", s.handleWizardAdditives)
				r.Put("/packages/{name}/tprice", s.handleWizardTPrice)
				r.Post("/confirm", s.handleWizardConfirm)
				r.Put("/packages/{name}/markup", s.handleWizardMarkup)
				r.Get("/summary", s.handleWizardSummary)
				r.Put("/margin", s.handleWizardMargin)
				r.Post("/coupon", s.handleWizardCoupon)
				r.Get("/quote", s.handleWizardQuote)
				r.Post("/finish", s.handleWizardFinish)
			})
		})
	})

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// accessLog logs every request and records its duration by route pattern.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(r.Method, route, status, elapsed)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type sessionKey struct{}

// authMiddleware requires a valid bearer token and stores its session in the
// request context.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		sess, err := s.tokens.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func requireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessionFrom(r.Context()).Role != role {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func sessionFrom(ctx context.Context) auth.Session {
	sess, _ := ctx.Value(sessionKey{}).(auth.Session)
	return sess
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &wizard.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	return nil
}

// writeError maps domain errors to HTTP statuses. Anything unrecognised is
// logged and reported as a 500.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *wizard.ValidationError
		status *campapi.StatusError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field})
	case errors.Is(err, auth.ErrMissingFields):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, wizard.ErrWrongStep):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, store.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotFound),
		errors.Is(err, wizard.ErrSessionNotFound), errors.Is(err, pricing.ErrInvalidCoupon):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, campapi.ErrTimeout), errors.As(err, &status):
		s.logger.Error("upstream request failed", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "upstream service unavailable"})
	default:
		s.logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
