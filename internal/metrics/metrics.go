// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uchat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uchat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	LoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uchat_login_total",
			Help: "Login attempts by result",
		},
		[]string{"result"}, // "success", "wrong_password", "missing_login"
	)

	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uchat_registrations_total",
			Help: "Accounts created",
		},
	)

	PostsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uchat_posts_created_total",
			Help: "Posts created by content kind",
		},
		[]string{"kind"},
	)

	SessionsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uchat_sessions_reaped_total",
			Help: "Expired sessions deleted by the reaper",
		},
	)
)

// RegisterPoolStats exposes connection pool gauges.
func RegisterPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "uchat_db_pool_acquired_conns",
			Help: "Connections currently checked out of the pool",
		}, func() float64 { return float64(pool.Stat().AcquiredConns()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "uchat_db_pool_idle_conns",
			Help: "Idle connections in the pool",
		}, func() float64 { return float64(pool.Stat().IdleConns()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "uchat_db_pool_total_conns",
			Help: "Total connections in the pool",
		}, func() float64 { return float64(pool.Stat().TotalConns()) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Middleware records request count and latency labelled by the matched chi
// route pattern, so path parameters do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		RecordHTTPRequest(r.Method, route, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
