// Package metrics exposes engine counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "poscore"

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sales          *prometheus.CounterVec
	returns        *prometheus.CounterVec
	purchases      *prometheus.CounterVec
	stockMovements *prometheus.CounterVec
	cashMovements  *prometheus.CounterVec
	domainErrors   *prometheus.CounterVec
	txDuration     *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sales_total",
			Help: "Sale state transitions by resulting state.",
		}, []string{"state"}),
		returns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "returns_total",
			Help: "Returns by kind or cancellation.",
		}, []string{"kind"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "purchases_total",
			Help: "Purchase state transitions by resulting state.",
		}, []string{"state"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_movements_total",
			Help: "Committed inventory ledger entries by kind.",
		}, []string{"kind"}),
		cashMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cash_movements_total",
			Help: "Committed cash movements by kind.",
		}, []string{"kind"}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "domain_errors_total",
			Help: "Errors returned by the engine by kind.",
		}, []string{"kind"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "transaction_duration_seconds",
			Help:    "Duration of engine operations, committed or not.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sales, m.returns, m.purchases, m.stockMovements, m.cashMovements,
		m.domainErrors, m.txDuration, m.httpRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Sale(state string) {
	if m != nil {
		m.sales.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) Return(kind string) {
	if m != nil {
		m.returns.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Purchase(state string) {
	if m != nil {
		m.purchases.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) StockMovement(kind string) {
	if m != nil {
		m.stockMovements.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CashMovement(kind string) {
	if m != nil {
		m.cashMovements.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) DomainError(kind string) {
	if m != nil {
		m.domainErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) HTTPRequest(route string, code string) {
	if m != nil {
		m.httpRequests.WithLabelValues(route, code).Inc()
	}
}

// Observe records how long operation has been running since start.
func (m *Metrics) Observe(operation string, start time.Time) {
	if m != nil {
		m.txDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
