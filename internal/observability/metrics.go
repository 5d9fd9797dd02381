package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PollsTotal      *prometheus.CounterVec
	RunsArchived    prometheus.Counter
	ServedTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appthwack",
			Name:      "api_requests_total",
			Help:      "API round trips by method and response code",
		}, []string{"method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appthwack",
			Name:      "api_request_duration_seconds",
			Help:      "API round trip latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appthwack",
			Name:      "run_polls_total",
			Help:      "Run status polls by reported status",
		}, []string{"status"}),
		RunsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "appthwack",
			Name:      "runs_archived_total",
			Help:      "Completed runs written to the result archive",
		}),
		ServedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thwackbin",
			Name:      "requests_served_total",
			Help:      "Requests answered by the fake service by route and status code",
		}, []string{"route", "code"}),
	}
	r.MustRegister(m.RequestsTotal, m.RequestDuration, m.PollsTotal, m.RunsArchived, m.ServedTotal)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRequest records one API round trip. A zero code means the request
// never produced a response.
func (m *Metrics) ObserveRequest(method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RequestsTotal.WithLabelValues(method, label).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePoll(status string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RunArchived() {
	if m == nil {
		return
	}
	m.RunsArchived.Inc()
}

func (m *Metrics) ObserveServed(route string, code int) {
	if m == nil {
		return
	}
	m.ServedTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
