package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	// Settlements counts purchase settlements by outcome.
	Settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "settlement",
			Name:      "purchases_total",
			Help:      "Total number of purchase settlements by outcome.",
		},
		[]string{"outcome"},
	)

	// Listings counts service listings by outcome.
	Listings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "settlement",
			Name:      "listings_total",
			Help:      "Total number of service listings by outcome.",
		},
		[]string{"outcome"},
	)

	// PaymentsSubmitted counts payment envelopes handed to the ledger.
	PaymentsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "ledger",
			Name:      "payments_submitted_total",
			Help:      "Total number of payment transactions submitted to the ledger.",
		},
	)

	// HTTPRequests counts handled HTTP requests.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(Settlements, Listings, PaymentsSubmitted, HTTPRequests)
}

// Handler returns the scrape endpoint for the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
