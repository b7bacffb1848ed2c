package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pokemcp"

// HTTPBuckets are latency buckets in seconds. A cold-cache battle makes a
// dozen upstream calls and can take several seconds.
var HTTPBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics holds every collector the server exports. A nil *Metrics is valid
// and records nothing, so components can be built without it in tests.
type Metrics struct {
	reg *prometheus.Registry

	BattlesTotal    *prometheus.CounterVec
	BattleTurns     prometheus.Histogram
	ToolCallsTotal  *prometheus.CounterVec
	PokeAPIRequests *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry. Go runtime and process
// collectors are included so /metrics is useful on its own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		BattlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "battles_total",
			Help:      "Completed battle simulations by winning side.",
		}, []string{"winner"}),
		BattleTurns: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "battle_turns",
			Help:      "Number of turns per completed battle.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34, 50},
		}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "status"}),
		PokeAPIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pokeapi_requests_total",
			Help:      "Upstream PokeAPI requests by endpoint and outcome.",
		}, []string{"endpoint", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template, method and status code.",
			Buckets:   HTTPBuckets,
		}, []string{"route", "method", "status_code"}),
	}
}

// ObserveBattle records a finished battle.
func (m *Metrics) ObserveBattle(winner string, turns int) {
	if m == nil {
		return
	}
	m.BattlesTotal.WithLabelValues(winner).Inc()
	m.BattleTurns.Observe(float64(turns))
}

// ToolCall records one tool invocation; status is "ok" or "error".
func (m *Metrics) ToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}

// PokeAPIRequest records one upstream request.
func (m *Metrics) PokeAPIRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.PokeAPIRequests.WithLabelValues(endpoint, status).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Summary flattens the pokemcp_* counters and histogram counts into a map
// keyed by metric name and label values, for the admin endpoint.
func (m *Metrics) Summary() (map[string]float64, error) {
	out := make(map[string]float64)
	if m == nil {
		return out, nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range families {
		name := mf.GetName()
		if len(name) < len(namespace) || name[:len(namespace)] != namespace {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := ""
			for _, lp := range metric.GetLabel() {
				labels += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[name+labels] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				out[name+"_count"+labels] += float64(metric.GetHistogram().GetSampleCount())
				out[name+"_sum"+labels] += metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return out, nil
}
