// Package campapi is the client side of the estimation REST API and the wire
// types both sides share.
package campapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/u4rad/campcost/internal/pricing"
)

const DefaultTimeout = 10 * time.Second

// ErrTimeout means a request did not finish within the client timeout. The
// caller may retry the action that triggered it.
var ErrTimeout = errors.New("camp api request timed out")

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("camp api returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the estimation REST API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   string
	logger  *slog.Logger
}

type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the API rooted at baseURL, e.g. http://host/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServiceCosts fetches the cost catalog.
func (c *Client) ServiceCosts(ctx context.Context) ([]pricing.ServiceCost, error) {
	var wire []ServiceCost
	if err := c.do(ctx, http.MethodGet, "/service_costs/", nil, &wire); err != nil {
		return nil, err
	}
	costs := make([]pricing.ServiceCost, 0, len(wire))
	for _, w := range wire {
		costs = append(costs, w.Pricing())
	}
	return costs, nil
}

// Prices fetches the tier table.
func (c *Client) Prices(ctx context.Context) (pricing.TierTable, error) {
	var wire []PricedService
	if err := c.do(ctx, http.MethodGet, "/prices/", nil, &wire); err != nil {
		return nil, err
	}
	ranges := make(map[string][]pricing.PriceRange, len(wire))
	for _, svc := range wire {
		for _, r := range svc.PriceRanges {
			ranges[svc.Name] = append(ranges[svc.Name], pricing.PriceRange{MaxCases: r.MaxCases, PricePerCase: r.Price.Decimal})
		}
	}
	return pricing.NewTierTable(ranges), nil
}

// Catalog fetches both the cost catalog and the tier table.
func (c *Client) Catalog(ctx context.Context) (pricing.Catalog, pricing.TierTable, error) {
	costs, err := c.ServiceCosts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch service costs: %w", err)
	}
	tiers, err := c.Prices(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch prices: %w", err)
	}
	return pricing.NewCatalog(costs), tiers, nil
}

// ServiceSelections lists the stored selections of a company.
func (c *Client) ServiceSelections(ctx context.Context, companyID string) ([]ServiceSelection, error) {
	var out []ServiceSelection
	path := "/service-selection/?company_id=" + url.QueryEscape(companyID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCostSummary stores a billing record and returns it as saved.
func (c *Client) CreateCostSummary(ctx context.Context, rec CostSummary) (CostSummary, error) {
	var out CostSummary
	if err := c.do(ctx, http.MethodPost, "/costsummaries", rec, &out); err != nil {
		return CostSummary{}, err
	}
	return out, nil
}

// ValidateCoupon implements pricing.CouponValidator. A 404 means the code is
// unknown.
func (c *Client) ValidateCoupon(ctx context.Context, code string) (decimal.Decimal, error) {
	var out Coupon
	err := c.do(ctx, http.MethodGet, "/validate-coupon/"+url.PathEscape(code)+"/", nil, &out)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return decimal.Zero, pricing.ErrInvalidCoupon
	}
	if err != nil {
		return decimal.Zero, err
	}
	return out.DiscountPercentage.Decimal, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.logger.Warn("camp api request timed out", "method", method, "path", path, "timeout", c.timeout)
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%s %s: %w", method, path, ErrTimeout)
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
