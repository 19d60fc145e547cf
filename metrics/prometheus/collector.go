// Package prometheus exports codec metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	mc, _ := vqprom.NewCollector(reg)
//	c, _ := vqcodec.New(vqcodec.WithMetricsCollector(mc))
package prometheus

import (
	"time"

	"github.com/hupe1980/vqcodec"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements vqcodec.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency    *prometheus.HistogramVec
	trainVectors *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	clamped      *prometheus.CounterVec
}

var _ vqcodec.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vqcodec_operation_latency_seconds",
			Help:    "Latency of codec operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		trainVectors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqcodec_train_vectors_total",
			Help: "Training vectors consumed per plane role",
		}, []string{"role"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqcodec_blocks_total",
			Help: "Blocks encoded or decoded",
		}, []string{"op"}),
		clamped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vqcodec_clamped_indices_total",
			Help: "Out-of-range codebook indices recovered by clamping",
		}, []string{"role"}),
	}

	for _, col := range []prometheus.Collector{c.opLatency, c.trainVectors, c.blocks, c.clamped} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordTrain implements vqcodec.MetricsCollector.
func (c *Collector) RecordTrain(role string, vectors int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("train", status(err)).Observe(d.Seconds())
	c.trainVectors.WithLabelValues(role).Add(float64(vectors))
}

// RecordCompress implements vqcodec.MetricsCollector.
func (c *Collector) RecordCompress(blocks int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("compress", status(err)).Observe(d.Seconds())
	c.blocks.WithLabelValues("compress").Add(float64(blocks))
}

// RecordDecompress implements vqcodec.MetricsCollector.
func (c *Collector) RecordDecompress(blocks int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("decompress", status(err)).Observe(d.Seconds())
	c.blocks.WithLabelValues("decompress").Add(float64(blocks))
}

// RecordClamp implements vqcodec.MetricsCollector.
func (c *Collector) RecordClamp(role string) {
	c.clamped.WithLabelValues(role).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
