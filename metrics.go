package vqcodec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordTrain is called after each per-role codebook training run.
	// vectors is the number of training vectors.
	RecordTrain(role string, vectors int, duration time.Duration, err error)

	// RecordCompress is called after each image compression.
	RecordCompress(blocks int, duration time.Duration, err error)

	// RecordDecompress is called after each image reconstruction.
	RecordDecompress(blocks int, duration time.Duration, err error)

	// RecordClamp is called for every out-of-range index recovered during
	// reconstruction.
	RecordClamp(role string)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordTrain(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCompress(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordDecompress(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordClamp(string)                            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	TrainCount           atomic.Int64
	TrainErrors          atomic.Int64
	TrainVectors         atomic.Int64
	CompressCount        atomic.Int64
	CompressErrors       atomic.Int64
	CompressBlocks       atomic.Int64
	CompressTotalNanos   atomic.Int64
	DecompressCount      atomic.Int64
	DecompressErrors     atomic.Int64
	DecompressTotalNanos atomic.Int64
	ClampCount           atomic.Int64
}

// RecordTrain implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrain(_ string, vectors int, _ time.Duration, err error) {
	b.TrainCount.Add(1)
	b.TrainVectors.Add(int64(vectors))
	if err != nil {
		b.TrainErrors.Add(1)
	}
}

// RecordCompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompress(blocks int, duration time.Duration, err error) {
	b.CompressCount.Add(1)
	b.CompressBlocks.Add(int64(blocks))
	b.CompressTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CompressErrors.Add(1)
	}
}

// RecordDecompress implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDecompress(_ int, duration time.Duration, err error) {
	b.DecompressCount.Add(1)
	b.DecompressTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DecompressErrors.Add(1)
	}
}

// RecordClamp implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClamp(string) {
	b.ClampCount.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		TrainCount:         b.TrainCount.Load(),
		TrainErrors:        b.TrainErrors.Load(),
		TrainVectors:       b.TrainVectors.Load(),
		CompressCount:      b.CompressCount.Load(),
		CompressErrors:     b.CompressErrors.Load(),
		CompressBlocks:     b.CompressBlocks.Load(),
		CompressAvgNanos:   avg(b.CompressTotalNanos.Load(), b.CompressCount.Load()),
		DecompressCount:    b.DecompressCount.Load(),
		DecompressErrors:   b.DecompressErrors.Load(),
		DecompressAvgNanos: avg(b.DecompressTotalNanos.Load(), b.DecompressCount.Load()),
		ClampCount:         b.ClampCount.Load(),
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
	TrainCount         int64
	TrainErrors        int64
	TrainVectors       int64
	CompressCount      int64
	CompressErrors     int64
	CompressBlocks     int64
	CompressAvgNanos   int64
	DecompressCount    int64
	DecompressErrors   int64
	DecompressAvgNanos int64
	ClampCount         int64
}
