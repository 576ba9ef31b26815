// Package metrics exposes task and HTTP instrumentation through an
// OpenTelemetry meter backed by a Prometheus exporter.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/adat-tool/adat-api/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/adat-tool/adat-api"

// Attribute keys.
var (
	AttrTaskType = attribute.Key("task_type")
	AttrStatus   = attribute.Key("status")
	AttrRoute    = attribute.Key("http.route")
	AttrMethod   = attribute.Key("http.method")
	AttrCode     = attribute.Key("http.status_code")
)

// Recorder owns a meter provider and its instruments. The zero value and a
// nil *Recorder record nothing.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	submitted     metric.Int64Counter
	finished      metric.Int64Counter
	timeouts      metric.Int64Counter
	leasesExpired metric.Int64Counter
	taskDuration  metric.Float64Histogram
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
}

var _ task.Metrics = (*Recorder)(nil)

// New creates a Recorder with its own Prometheus registry.
func New(ctx context.Context, serviceName string) (*Recorder, error) {
	if serviceName == "" {
		serviceName = "adat-api"
	}
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	r := &Recorder{
		provider: provider,
		handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}),
	}
	if err := r.initInstruments(provider.Meter(meterName)); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) initInstruments(m metric.Meter) error {
	var err error
	if r.submitted, err = m.Int64Counter("adat_task_submissions_total",
		metric.WithDescription("Tasks accepted onto the queue")); err != nil {
		return err
	}
	if r.finished, err = m.Int64Counter("adat_task_completions_total",
		metric.WithDescription("Tasks that reached a terminal state, by status")); err != nil {
		return err
	}
	if r.timeouts, err = m.Int64Counter("adat_task_timeouts_total",
		metric.WithDescription("Evaluations stopped by the processing timeout")); err != nil {
		return err
	}
	if r.leasesExpired, err = m.Int64Counter("adat_task_leases_expired_total",
		metric.WithDescription("Tasks failed because their worker lease expired")); err != nil {
		return err
	}
	if r.taskDuration, err = m.Float64Histogram("adat_task_duration_seconds",
		metric.WithDescription("Task handler duration in seconds")); err != nil {
		return err
	}
	if r.httpRequests, err = m.Int64Counter("adat_http_requests_total",
		metric.WithDescription("HTTP requests served")); err != nil {
		return err
	}
	if r.httpDuration, err = m.Float64Histogram("adat_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds")); err != nil {
		return err
	}
	return nil
}

// Handler serves the Prometheus scrape endpoint.
func (r *Recorder) Handler() http.Handler {
	if r == nil || r.handler == nil {
		return http.NotFoundHandler()
	}
	return r.handler
}

// Shutdown flushes and stops the meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// TaskSubmitted implements task.Metrics.
func (r *Recorder) TaskSubmitted(ctx context.Context, taskType string) {
	if r == nil || r.submitted == nil {
		return
	}
	r.submitted.Add(ctx, 1, metric.WithAttributes(AttrTaskType.String(taskType)))
}

// TaskFinished implements task.Metrics.
func (r *Recorder) TaskFinished(ctx context.Context, taskType string, status task.Status, elapsed time.Duration) {
	if r == nil || r.finished == nil {
		return
	}
	attrs := metric.WithAttributes(AttrTaskType.String(taskType), AttrStatus.String(string(status)))
	r.finished.Add(ctx, 1, attrs)
	r.taskDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// TaskTimedOut implements task.Metrics.
func (r *Recorder) TaskTimedOut(ctx context.Context, taskType string) {
	if r == nil || r.timeouts == nil {
		return
	}
	r.timeouts.Add(ctx, 1, metric.WithAttributes(AttrTaskType.String(taskType)))
}

// LeasesExpired implements task.Metrics.
func (r *Recorder) LeasesExpired(ctx context.Context, n int) {
	if r == nil || r.leasesExpired == nil || n <= 0 {
		return
	}
	r.leasesExpired.Add(ctx, int64(n))
}

// Middleware records request counts and latency by chi route pattern.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil || r.httpRequests == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs := metric.WithAttributes(
			AttrRoute.String(route),
			AttrMethod.String(req.Method),
			AttrCode.Int(status),
		)
		r.httpRequests.Add(req.Context(), 1, attrs)
		r.httpDuration.Record(req.Context(), time.Since(start).Seconds(), attrs)
	})
}
