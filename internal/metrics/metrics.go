package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ethtrader"

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registryRefreshes *prometheus.CounterVec
	registryTokens    prometheus.Gauge

	priceQuotes   *prometheus.CounterVec
	swapSims      *prometheus.CounterVec
	journalWrites *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registryRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_registry_refreshes_total",
			Help:      "Token list refreshes by result.",
		}, []string{"result"}),
		registryTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_registry_tokens",
			Help:      "Tokens currently held by the registry.",
		}),
		priceQuotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_quotes_total",
			Help:      "Answered price lookups by source.",
		}, []string{"source"}),
		swapSims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_simulations_total",
			Help:      "Swap simulations by protocol and outcome.",
		}, []string{"protocol", "success"}),
		journalWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_journal_writes_total",
			Help:      "Quote journal sink writes by sink and result.",
		}, []string{"sink", "result"}),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) RegistryRefreshed(ok bool, tokens int) {
	if m == nil {
		return
	}
	if !ok {
		m.registryRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.registryRefreshes.WithLabelValues("ok").Inc()
	m.registryTokens.Set(float64(tokens))
}

func (m *Metrics) PriceQuoted(source string) {
	if m == nil {
		return
	}
	m.priceQuotes.WithLabelValues(source).Inc()
}

func (m *Metrics) SwapSimulated(protocol string, success bool) {
	if m == nil {
		return
	}
	m.swapSims.WithLabelValues(protocol, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) JournalWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.journalWrites.WithLabelValues(sink, result).Inc()
}

// Handler serves the given gatherer, or the default registry when nil
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
