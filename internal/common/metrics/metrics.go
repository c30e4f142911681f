// Package metrics holds the Prometheus collectors of the convenios service.
// Everything is registered on the default registry under the "convenios"
// namespace and exposed by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "convenios"

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, normalized path and status.",
	}, []string{"method", "path", "status"})
)

var (
	// DBTransactionDuration is labelled by operation and by outcome
	// (commit, rollback, panic).
	DBTransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "transaction_duration_seconds",
		Help:      "Duration of database transactions in seconds.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"operation", "outcome"})

	// DBTransactionRetries counts transactions restarted after a deadlock or
	// serialization failure, by SQLSTATE.
	DBTransactionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "transaction_retries_total",
		Help:      "Transactions retried after a transient Postgres failure.",
	}, []string{"sqlstate"})

	DBOptimisticLockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "optimistic_lock_conflicts_total",
		Help:      "Updates rejected because the row version moved.",
	}, []string{"repository"})
)

var (
	IdempotencyReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "idempotency_replays_total",
		Help:      "Purchase and refund requests answered from a stored idempotency key.",
	})

	// EventosRegistrados is labelled by tipo (COMPRA, CAMBIO, DEVOLUCION).
	EventosRegistrados = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eventos_registrados_total",
		Help:      "Purchase and refund events appended.",
	}, []string{"tipo"})

	// AdmisionesRechazadas is labelled by the business error code.
	AdmisionesRechazadas = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admisiones_rechazadas_total",
		Help:      "Purchases rejected by vigency or convenio limits.",
	}, []string{"codigo"})

	// ConveniosDesactivados is labelled by origen (lazy, sweep, admin).
	ConveniosDesactivados = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "desactivados_total",
		Help:      "Convenios moved to INACTIVO.",
	}, []string{"origen"})

	ReconciliacionDerivas = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciliacion",
		Name:      "derivas_total",
		Help:      "Convenios whose cached counters differed from the event log.",
	})

	ReconciliacionFallos = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciliacion",
		Name:      "fallos_total",
		Help:      "Convenios that failed to reconcile.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. Scrapes of /metrics are not counted.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		status := strconv.Itoa(rw.status)
		path := NormalizePath(r.URL.Path)
		HTTPRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// NormalizePath replaces numeric path segments with {id} to keep label
// cardinality bounded, e.g. /convenios/17/consumo -> /convenios/{id}/consumo.
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func RecordOptimisticLockConflict(repository string) {
	DBOptimisticLockConflicts.WithLabelValues(repository).Inc()
}

// RecordTransactionDuration observes a committed transaction.
func RecordTransactionDuration(operation string, duration time.Duration) {
	RecordTransaction(operation, "commit", duration)
}

func RecordTransaction(operation, outcome string, duration time.Duration) {
	DBTransactionDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

func RecordTransactionRetry(sqlstate string) {
	DBTransactionRetries.WithLabelValues(sqlstate).Inc()
}

func RecordIdempotencyCacheHit() {
	IdempotencyReplays.Inc()
}

func RecordEvento(tipo string) {
	EventosRegistrados.WithLabelValues(tipo).Inc()
}

func RecordAdmisionRechazada(codigo string) {
	AdmisionesRechazadas.WithLabelValues(codigo).Inc()
}

func RecordConvenioDesactivado(origen string) {
	ConveniosDesactivados.WithLabelValues(origen).Inc()
}

// RecordReconciliacion records the outcome of reconciling one convenio.
func RecordReconciliacion(corrected bool, err error) {
	switch {
	case err != nil:
		ReconciliacionFallos.Inc()
	case corrected:
		ReconciliacionDerivas.Inc()
	}
}
