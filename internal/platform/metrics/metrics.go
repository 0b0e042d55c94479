// Package metrics exposes Prometheus instruments for the clinic server. All
// observe methods are safe to call on a nil receiver so services can run
// without metrics in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

// SchedulingMetrics covers booking, lifecycle transitions and the no-show
// sweep.
type SchedulingMetrics struct {
	bookings      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	sweepRuns     *prometheus.CounterVec
	sweepMarked   prometheus.Counter
	sweepDuration prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by result",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Applied appointment status transitions",
		}, []string{"to", "source"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "noshow_sweep_runs_total",
			Help:      "No-show sweep executions by result",
		}, []string{"result"}),
		sweepMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "noshow_marked_total",
			Help:      "Appointments moved to no-show by the sweep",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "noshow_sweep_duration_seconds",
			Help:      "Duration of no-show sweep runs",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.transitions, m.sweepRuns, m.sweepMarked, m.sweepDuration)
	return m
}

// ObserveBooking records a booking outcome: "booked", "conflict" or "rejected".
func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(to, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, source).Inc()
}

func (m *SchedulingMetrics) ObserveSweep(marked int64, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepMarked.Add(float64(marked))
	m.sweepDuration.Observe(took.Seconds())
}

// BillingMetrics counts bills by origin and status changes.
type BillingMetrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "bills_created_total",
			Help:      "Bills created, by origin (auto or manual)",
		}, []string{"origin"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "status_transitions_total",
			Help:      "Applied bill status transitions",
		}, []string{"to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.created, m.transitions)
	return m
}

func (m *BillingMetrics) ObserveCreated(auto bool) {
	if m == nil {
		return
	}
	origin := "manual"
	if auto {
		origin = "auto"
	}
	m.created.WithLabelValues(origin).Inc()
}

func (m *BillingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// RecordMetrics counts soft-delete and restore operations.
type RecordMetrics struct {
	ops *prometheus.CounterVec
}

func NewRecordMetrics(reg prometheus.Registerer) *RecordMetrics {
	m := &RecordMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "soft_delete_ops_total",
			Help:      "Soft delete and restore operations by kind and result",
		}, []string{"kind", "op", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ops)
	return m
}

func (m *RecordMetrics) ObserveOp(kind, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ops.WithLabelValues(kind, op, result).Inc()
}

// HTTPMetrics instruments the echo router.
type HTTPMetrics struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	eventsDropped prometheus.Counter
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Realtime events skipped because a client buffer was full",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requests, m.latency, m.eventsDropped)
	return m
}

func (m *HTTPMetrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// Middleware records one sample per request, labelled by the matched route
// rather than the raw path.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < 400 {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
