package webapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/akismet-check/lib/akismet"
	"github.com/umputun/akismet-check/lib/spamcheck"
)

// metrics counts requests made to the service, each server has its own registry
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	res := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "akismet_check",
			Name:      "requests_total",
			Help:      "Number of requests to akismet by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "akismet_check",
			Name:      "request_duration_seconds",
			Help:      "Duration of akismet operations, including key verification.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"op"}),
	}
	res.registry.MustRegister(res.requests, res.duration)
	return res
}

// observe records the result of op started at start
func (m *metrics) observe(op string, resp spamcheck.Response, start time.Time) {
	m.requests.WithLabelValues(op, resultLabel(op, resp)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func resultLabel(op string, resp spamcheck.Response) string {
	switch {
	case resp.Error != nil:
		return "error"
	case op == akismet.OpCommentCheck && resp.Spam:
		return "spam"
	case op == akismet.OpCommentCheck:
		return "ham"
	case resp.Accepted:
		return "accepted"
	default:
		return "rejected"
	}
}
