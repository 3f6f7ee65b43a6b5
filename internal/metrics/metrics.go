package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Quote metrics
	QuotesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campcost_quotes_computed_total",
			Help: "Total number of quotes computed",
		},
		[]string{"flow"},
	)

	UnpricedServices = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campcost_unpriced_services_total",
			Help: "Services priced at zero because the catalog had no entry",
		},
		[]string{"service"},
	)

	TierMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campcost_tier_misses_total",
			Help: "Service lines whose case volume exceeded every price range",
		},
		[]string{"service"},
	)

	CouponValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campcost_coupon_validations_total",
			Help: "Coupon validations by result",
		},
		[]string{"result"},
	)

	BillingRecordsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campcost_billing_records_created_total",
			Help: "Total number of cost summaries stored",
		},
	)

	ActiveWizardSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "campcost_wizard_sessions",
			Help: "Wizard sessions held in memory",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campcost_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route and status",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route", "status"},
	)
)

// Registry holds every campcost collector plus the Go and process collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		QuotesComputed,
		UnpricedServices,
		TierMisses,
		CouponValidations,
		BillingRecordsCreated,
		ActiveWizardSessions,
		HTTPRequestDuration,
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RecordUnpriced counts each service that had no catalog entry.
func RecordUnpriced(services []string) {
	for _, s := range services {
		UnpricedServices.WithLabelValues(s).Inc()
	}
}

// RecordTierMisses counts each service that fell outside its price ranges.
func RecordTierMisses(services []string) {
	for _, s := range services {
		TierMisses.WithLabelValues(s).Inc()
	}
}
