package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hotel-directory-crawler/internal/progress"
)

// PrometheusSink exports crawl progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted prometheus.Counter
	runsRunning   prometheus.Gauge
	runDuration   prometheus.Histogram

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	records         *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotelcrawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotelcrawler_runs_completed_total",
			Help: "Total crawl runs that have finished.",
		}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotelcrawler_runs_running",
			Help: "Crawl runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hotelcrawler_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelcrawler_requests_total",
			Help: "Request outcomes partitioned by stage.",
		}, []string{"stage", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hotelcrawler_request_duration_seconds",
			Help:    "Time from dequeue to completion per stage.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotelcrawler_records_total",
			Help: "Records appended to the dataset per stage.",
		}, []string{"stage"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.requests,
		s.requestDuration,
		s.records,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	stage := evt.Stage.String()
	switch evt.Kind {
	case progress.KindRunStart:
		s.runsStarted.Inc()
		s.runsRunning.Inc()
	case progress.KindRunDone:
		s.runsCompleted.Inc()
		s.runsRunning.Dec()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	case progress.KindRequestDone:
		s.requests.WithLabelValues(stage, "success").Inc()
		s.observeRequest(stage, evt)
	case progress.KindRequestRetry:
		s.requests.WithLabelValues(stage, "retry").Inc()
	case progress.KindRequestFailed:
		s.requests.WithLabelValues(stage, "failed").Inc()
		s.observeRequest(stage, evt)
	case progress.KindRecord:
		s.records.WithLabelValues(stage).Inc()
	}
}

func (s *PrometheusSink) observeRequest(stage string, evt progress.Event) {
	if evt.Dur > 0 {
		s.requestDuration.WithLabelValues(stage).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
