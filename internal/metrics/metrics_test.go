package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_RecordOrder(t *testing.T) {
	m := newTestMetrics(t)

	pending := models.Order{Side: models.SideCompra, Status: models.StatusPendiente}
	filled := models.Order{Side: models.SideVenta, Status: models.StatusEjecutada}
	trade := &models.Transaction{Price: 95, Quantity: 100, Market: models.MarketCL}

	m.RecordOrder(pending, nil)
	m.RecordOrder(filled, trade)
	m.RecordOrder(filled, trade)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("Compra", "Pendiente")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("Venta", "Ejecutada")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("CL")))
	assert.Equal(t, 19000.0, testutil.ToFloat64(m.ExecutedVolume.WithLabelValues("CL")))
}

func TestMetrics_RecordLogin(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordLogin(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginsTotal.WithLabelValues("failure")))
}

func TestMetrics_Middleware(t *testing.T) {
	m := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/ordenes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/orden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/ordenes?limite=5", nil),
		httptest.NewRequest(http.MethodGet, "/ordenes", nil),
		httptest.NewRequest(http.MethodPost, "/orden", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ordenes", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/orden", "400")))
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordLogin(true)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `nuam_logins_total{result="success"} 1`))
}
