package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrementByLabel(t *testing.T) {
	m := New()
	m.Sale("completed")
	m.Sale("completed")
	m.Sale("cancelled")
	m.StockMovement("OUT")
	m.DomainError("insufficient_stock")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sales.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sales.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockMovements.WithLabelValues("OUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.domainErrors.WithLabelValues("insufficient_stock")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Sale("completed")
		m.Return("total")
		m.Purchase("completed")
		m.CashMovement("SALE")
		m.HTTPRequest("/healthz", "200")
		m.Observe("sale.create", time.Now())
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.CashMovement("DEPOSIT")
	m.Observe("cash.close", time.Now().Add(-10*time.Millisecond))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `poscore_cash_movements_total{kind="DEPOSIT"} 1`))
	assert.True(t, strings.Contains(body, `poscore_transaction_duration_seconds_count{operation="cash.close"} 1`))
}
