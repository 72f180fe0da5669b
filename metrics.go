package acton

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives timings of simulation steps.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    epochCounter   prometheus.Counter
//	    fitHistogram   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordFit(n int, duration time.Duration, err error) {
//	    p.fitHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordLabels is called after each oracle batch. count is the number
	// of instances queried.
	RecordLabels(count int, duration time.Duration, err error)

	// RecordFit is called after each predictor fit on n labelled instances.
	RecordFit(n int, duration time.Duration, err error)

	// RecordRecommend is called after each recommendation over a pool of
	// size pool.
	RecordRecommend(pool int, duration time.Duration, err error)

	// RecordSnapshot is called after each record append.
	RecordSnapshot(duration time.Duration, err error)

	// RecordEpoch is called once per epoch with its total duration.
	RecordEpoch(epoch int, duration time.Duration, err error)
}

// NoopMetricsCollector discards everything.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLabels(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordFit(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordRecommend(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)       {}
func (NoopMetricsCollector) RecordEpoch(int, time.Duration, error)     {}

// BasicMetricsCollector keeps counters in memory. Safe for concurrent use.
type BasicMetricsCollector struct {
	LabelBatches    atomic.Int64
	LabelsQueried   atomic.Int64
	LabelErrors     atomic.Int64
	LabelTotalNanos atomic.Int64

	FitCount      atomic.Int64
	FitErrors     atomic.Int64
	FitTotalNanos atomic.Int64

	RecommendCount      atomic.Int64
	RecommendErrors     atomic.Int64
	RecommendTotalNanos atomic.Int64

	SnapshotCount  atomic.Int64
	SnapshotErrors atomic.Int64

	EpochCount      atomic.Int64
	EpochErrors     atomic.Int64
	EpochTotalNanos atomic.Int64
}

// RecordLabels implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLabels(count int, duration time.Duration, err error) {
	b.LabelBatches.Add(1)
	b.LabelTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LabelErrors.Add(1)
		return
	}
	b.LabelsQueried.Add(int64(count))
}

// RecordFit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFit(_ int, duration time.Duration, err error) {
	b.FitCount.Add(1)
	b.FitTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FitErrors.Add(1)
	}
}

// RecordRecommend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecommend(_ int, duration time.Duration, err error) {
	b.RecommendCount.Add(1)
	b.RecommendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RecommendErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(_ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// RecordEpoch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEpoch(_ int, duration time.Duration, err error) {
	b.EpochCount.Add(1)
	b.EpochTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.EpochErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LabelBatches:      b.LabelBatches.Load(),
		LabelsQueried:     b.LabelsQueried.Load(),
		LabelErrors:       b.LabelErrors.Load(),
		LabelAvgNanos:     avg(b.LabelTotalNanos.Load(), b.LabelBatches.Load()),
		FitCount:          b.FitCount.Load(),
		FitErrors:         b.FitErrors.Load(),
		FitAvgNanos:       avg(b.FitTotalNanos.Load(), b.FitCount.Load()),
		RecommendCount:    b.RecommendCount.Load(),
		RecommendErrors:   b.RecommendErrors.Load(),
		RecommendAvgNanos: avg(b.RecommendTotalNanos.Load(), b.RecommendCount.Load()),
		SnapshotCount:     b.SnapshotCount.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
		EpochCount:        b.EpochCount.Load(),
		EpochErrors:       b.EpochErrors.Load(),
		EpochAvgNanos:     avg(b.EpochTotalNanos.Load(), b.EpochCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LabelBatches      int64
	LabelsQueried     int64
	LabelErrors       int64
	LabelAvgNanos     int64
	FitCount          int64
	FitErrors         int64
	FitAvgNanos       int64
	RecommendCount    int64
	RecommendErrors   int64
	RecommendAvgNanos int64
	SnapshotCount     int64
	SnapshotErrors    int64
	EpochCount        int64
	EpochErrors       int64
	EpochAvgNanos     int64
}
