package metrics

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

// Recorder exports pipeline metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	rowsAppended  prometheus.Counter
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	watermark     prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// NewRecorder creates a Recorder with Go and process collectors registered.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_etl_runs_total",
			Help: "Pipeline runs by reported status.",
		}, []string{"status"}),
		rowsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aq_etl_rows_appended_total",
			Help: "Daily rows appended to the warehouse.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aq_etl_fetch_duration_seconds",
			Help:    "Duration of upstream fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aq_etl_fetch_errors_total",
			Help: "Failed upstream fetches.",
		}, []string{"source"}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aq_etl_window_start_timestamp_seconds",
			Help: "Start of the most recently resolved fetch window (UTC midnight).",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aq_etl_last_success_timestamp_seconds",
			Help: "Wall-clock time of the last run that appended rows or was up to date.",
		}),
	}

	registry.MustRegister(r.runsTotal)
	registry.MustRegister(r.rowsAppended)
	registry.MustRegister(r.fetchDuration)
	registry.MustRegister(r.fetchErrors)
	registry.MustRegister(r.watermark)
	registry.MustRegister(r.lastSuccess)
	return r
}

var _ weather.Recorder = (*Recorder)(nil)

// Registry returns the Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveFetch(source string, d time.Duration, err error) {
	r.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		r.fetchErrors.WithLabelValues(source).Inc()
	}
}

func (r *Recorder) ObserveRun(status string, rows int) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.rowsAppended.Add(float64(rows))
	if status != string(weather.StatusError) {
		r.lastSuccess.SetToCurrentTime()
	}
}

func (r *Recorder) SetWatermark(start civil.Date) {
	r.watermark.Set(float64(start.In(time.UTC).Unix()))
}

// Push sends the registry to a Pushgateway. One-shot runs exit before any
// scrape could happen, so they push instead.
func (r *Recorder) Push(url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
