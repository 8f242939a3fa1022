package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sejmwatch/sejmaudit/internal/progress"
)

// PrometheusSink exports audit progress via Prometheus. It owns all the
// collectors for process throughput and attachment risk.
type PrometheusSink struct {
	processesStarted   prometheus.Counter
	processesCompleted *prometheus.CounterVec
	processesRunning   prometheus.Gauge
	processDuration    *prometheus.HistogramVec

	attachmentsScanned *prometheus.CounterVec
	attachmentRisk     prometheus.Histogram
	downloadBytes      prometheus.Counter

	tracker *processTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		processesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_processes_started_total",
			Help: "Legislative processes whose audit has started.",
		}),
		processesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_processes_completed_total",
			Help: "Legislative processes audited, partitioned by result.",
		}, []string{"result"}),
		processesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_processes_running",
			Help: "Processes currently being audited.",
		}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_process_duration_seconds",
			Help:    "Wall time per audited process.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		attachmentsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_attachments_scanned_total",
			Help: "Attachments scanned, partitioned by risk score.",
		}, []string{"risk"}),
		attachmentRisk: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_attachment_risk",
			Help:    "Distribution of attachment risk scores.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_download_bytes_total",
			Help: "Attachment bytes downloaded.",
		}),
		tracker: newProcessTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.processesStarted,
		s.processesCompleted,
		s.processesRunning,
		s.processDuration,
		s.attachmentsScanned,
		s.attachmentRisk,
		s.downloadBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from one batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageProcessStart:
			s.processesStarted.Inc()
			if s.tracker.start(evt.TreeID) {
				s.processesRunning.Inc()
			}
		case progress.StageProcessDone:
			s.completeProcess(evt, "success")
		case progress.StageProcessError:
			s.completeProcess(evt, "error")
		case progress.StageScan:
			s.attachmentsScanned.WithLabelValues(strconv.Itoa(evt.Risk)).Inc()
			s.attachmentRisk.Observe(float64(evt.Risk))
			if evt.Bytes > 0 {
				s.downloadBytes.Add(float64(evt.Bytes))
			}
		}
	}
	return nil
}

func (s *PrometheusSink) completeProcess(evt progress.Event, result string) {
	s.processesCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.processDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.TreeID) {
		s.processesRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type processTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newProcessTracker() *processTracker {
	return &processTracker{running: make(map[string]struct{})}
}

func (t *processTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *processTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
