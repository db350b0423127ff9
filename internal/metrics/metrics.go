package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "advocate_dashboard"

// Metrics объединяет коллекторы сервиса. Регистрируются в переданном реестре,
// чтобы тесты могли создавать независимые экземпляры.
type Metrics struct {
	RemoteRequests  *prometheus.CounterVec
	RemoteLatency   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	StatusMutations *prometheus.CounterVec
	Reloads         *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RemoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_requests_total",
			Help:      "Requests sent to the remote table API by operation and HTTP status code.",
		}, []string{"operation", "code"}),
		RemoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_request_duration_seconds",
			Help:      "Latency of remote table API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Dashboard API requests by method and status.",
		}, []string{"method", "status"}),
		StatusMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_mutations_total",
			Help:      "Article status changes by target status and result.",
		}, []string{"status", "result"}),
		Reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Full article set reloads by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.RemoteRequests, m.RemoteLatency, m.HTTPRequests, m.StatusMutations, m.Reloads)
	}
	return m
}

// ObserveRemote учитывает один запрос к удалённому API. code == 0 означает сетевую ошибку.
func (m *Metrics) ObserveRemote(operation string, code int, took time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.RemoteRequests.WithLabelValues(operation, label).Inc()
	m.RemoteLatency.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveMutation(status string, err error) {
	if m == nil {
		return
	}
	m.StatusMutations.WithLabelValues(status, result(err)).Inc()
}

func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	m.Reloads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
