package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carebook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	dispatcherRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_requests_total",
			Help:      "Dispatched requests by route and serving source (remote or local).",
		},
		[]string{"route", "source"},
	)

	remoteFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatcher_remote_fallbacks_total",
			Help:      "Remote attempts abandoned in favour of local emulation.",
		},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	jobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Scheduled jobs by name and outcome.",
		},
		[]string{"job", "outcome"},
	)

	eventHandlerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_errors_total",
			Help:      "Event handler failures by event type.",
		},
		[]string{"event_type"},
	)

	storeDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_degraded",
			Help:      "1 while the primary store is down and the in-memory fallback serves requests.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, dispatcherRequests, remoteFallbacks, ledgerOps, jobs, eventHandlerErrors, storeDegraded)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncDispatch(route, source string) {
	dispatcherRequests.WithLabelValues(route, source).Inc()
}

func IncRemoteFallback() {
	remoteFallbacks.Inc()
}

func IncLedger(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ledgerOps.WithLabelValues(op, result).Inc()
}

// IncJob records a job outcome: done, retry, dead or skipped.
func IncJob(name, outcome string) {
	jobs.WithLabelValues(name, outcome).Inc()
}

func IncEventHandlerErrors(eventType string, n int) {
	eventHandlerErrors.WithLabelValues(eventType).Add(float64(n))
}

func SetStoreDegraded(down bool) {
	if down {
		storeDegraded.Set(1)
		return
	}
	storeDegraded.Set(0)
}
