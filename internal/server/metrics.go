package server

import (
	"sync/atomic"
	"time"

	"github.com/roadcare/vigil/internal/models"
)

// Metrics carries the request counters exposed on /api/metrics.
type Metrics struct {
	started time.Time

	totalFrames    atomic.Int64
	totalErrors    atomic.Int64
	totalLatencyMS atomic.Int64
	flagged        atomic.Int64
	lastFrameUnix  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

func (m *Metrics) RecordFrame(status models.Status, latency time.Duration) {
	m.totalFrames.Add(1)
	m.totalLatencyMS.Add(latency.Milliseconds())
	m.lastFrameUnix.Store(time.Now().Unix())
	if status != models.StatusSafe {
		m.flagged.Add(1)
	}
}

func (m *Metrics) RecordError() {
	m.totalErrors.Add(1)
}

// MetricsSnapshot is the JSON view of the counters.
type MetricsSnapshot struct {
	TotalFrames   int64   `json:"totalFrames"`
	TotalErrors   int64   `json:"totalErrors"`
	FlaggedFrames int64   `json:"flaggedFrames"`
	DetectionRate float64 `json:"detectionRate"`
	AvgLatencyMS  float64 `json:"avgLatencyMs"`
	LastFrameUnix int64   `json:"lastFrameUnix,omitempty"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Timestamp     string  `json:"timestamp"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TotalFrames:   m.totalFrames.Load(),
		TotalErrors:   m.totalErrors.Load(),
		FlaggedFrames: m.flagged.Load(),
		LastFrameUnix: m.lastFrameUnix.Load(),
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Timestamp:     models.FormatWireTime(time.Now()),
	}
	if snap.TotalFrames > 0 {
		snap.DetectionRate = models.Round3(float64(snap.FlaggedFrames) / float64(snap.TotalFrames))
		snap.AvgLatencyMS = models.Round3(float64(m.totalLatencyMS.Load()) / float64(snap.TotalFrames))
	}
	return snap
}
