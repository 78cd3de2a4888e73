package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoscaler",
		Name:      "collections_total",
		Help:      "Completed metric collections per service.",
	}, []string{"service"})

	collectionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoscaler",
		Name:      "collection_errors_total",
		Help:      "Failed metric collections per service.",
	}, []string{"service"})

	collectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autoscaler",
		Name:      "collection_duration_seconds",
		Help:      "Metric collection latency per service.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoscaler",
		Name:      "decisions_total",
		Help:      "Scaling decisions per service and direction.",
	}, []string{"service", "direction"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoscaler",
		Name:      "executions_total",
		Help:      "Scaling executions per service and status.",
	}, []string{"service", "status"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoscaler",
		Name:      "rollbacks_total",
		Help:      "Rollback attempts per service and status.",
	}, []string{"service", "status"})

	serviceInstances = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "autoscaler",
		Name:      "service_instances",
		Help:      "Last observed instance count per service.",
	}, []string{"service"})
)

func IncCollection(service string) {
	collectionsTotal.WithLabelValues(service).Inc()
}

func IncCollectionError(service string) {
	collectionErrorsTotal.WithLabelValues(service).Inc()
}

func ObserveCollectionDuration(service string, d time.Duration) {
	collectionDuration.WithLabelValues(service).Observe(d.Seconds())
}

func IncDecision(service, direction string) {
	decisionsTotal.WithLabelValues(service, direction).Inc()
}

func IncExecution(service, status string) {
	executionsTotal.WithLabelValues(service, status).Inc()
}

func IncRollback(service, status string) {
	rollbacksTotal.WithLabelValues(service, status).Inc()
}

func SetInstances(service string, count int) {
	serviceInstances.WithLabelValues(service).Set(float64(count))
}

// Handler exposes the default registry for the API server.
func Handler() http.Handler {
	return promhttp.Handler()
}
