package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/woffyai/woffyd/pkg/relay"
)

const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeConfig   = "config_error"
	outcomeUpstream = "upstream_error"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)

// Metrics owns a private registry so several servers can live in one
// process (tests) without duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	chatRequests     *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	tokenUsage       *prometheus.CounterVec
	streamFragments  prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "woffyd_http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "woffyd_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "woffyd_chat_requests_total",
			Help: "Chat relay requests by mode, delivery and outcome",
		}, []string{"mode", "stream", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "woffyd_upstream_duration_seconds",
			Help:    "Duration of upstream completion calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"model", "stream"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "woffyd_upstream_errors_total",
			Help: "Failed upstream calls by model and status",
		}, []string{"model", "status"}),
		tokenUsage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "woffyd_token_usage_total",
			Help: "Tokens reported by the upstream provider",
		}, []string{"model", "type"}),
		streamFragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "woffyd_stream_fragments_total",
			Help: "Content fragments relayed to streaming clients",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.chatRequests,
		m.upstreamDuration,
		m.upstreamErrors,
		m.tokenUsage,
		m.streamFragments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records every request under its chi route pattern so path
// parameters and unknown paths do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveChat(mode string, stream bool, outcome string) {
	m.chatRequests.WithLabelValues(mode, strconv.FormatBool(stream), outcome).Inc()
}

func (m *Metrics) ObserveUpstream(model string, stream bool, elapsed time.Duration, err error) {
	m.upstreamDuration.WithLabelValues(model, strconv.FormatBool(stream)).Observe(elapsed.Seconds())
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	status := "none"
	var upstreamErr *relay.UpstreamError
	if errors.As(err, &upstreamErr) && upstreamErr.StatusCode > 0 {
		status = strconv.Itoa(upstreamErr.StatusCode)
	}
	m.upstreamErrors.WithLabelValues(model, status).Inc()
}

func (m *Metrics) ObserveUsage(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.tokenUsage.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokenUsage.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

func (m *Metrics) ObserveFragment() {
	m.streamFragments.Inc()
}

func outcomeFor(err error) string {
	var (
		validationErr *relay.ValidationError
		upstreamErr   *relay.UpstreamError
	)
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	case errors.Is(err, relay.ErrConfiguration):
		return outcomeConfig
	case errors.As(err, &validationErr):
		return outcomeInvalid
	case errors.As(err, &upstreamErr), errors.Is(err, relay.ErrInvalidUpstreamResponse):
		return outcomeUpstream
	default:
		return outcomeError
	}
}
