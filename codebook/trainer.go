package codebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/vqcodec/internal/kmeans"
)

// DefaultSize is the codebook size used when none is configured. It keeps
// every index within one byte.
const DefaultSize = 256

// Clusterer learns representative vectors from training data.
//
// Cluster receives n vectors flattened into data (n*dim) and must return
// between 1 and k flattened prototypes minimizing the within-cluster sum of
// squares. k never exceeds n.
type Clusterer interface {
	Cluster(ctx context.Context, data []float32, dim, k int) ([]float32, error)
}

// ClustererFunc adapts a function to the Clusterer interface.
type ClustererFunc func(ctx context.Context, data []float32, dim, k int) ([]float32, error)

// Cluster calls f.
func (f ClustererFunc) Cluster(ctx context.Context, data []float32, dim, k int) ([]float32, error) {
	return f(ctx, data, dim, k)
}

// KMeans is the default Clusterer: k-means++ seeding followed by bounded
// Lloyd iterations.
type KMeans struct {
	MaxIterations int
	Seed          int64
	Workers       int
}

// Cluster implements Clusterer.
func (km KMeans) Cluster(ctx context.Context, data []float32, dim, k int) ([]float32, error) {
	return kmeans.Train(ctx, data, dim, k, kmeans.Options{
		MaxIterations: km.MaxIterations,
		Seed:          km.Seed,
		Workers:       km.Workers,
	})
}

// Trainer turns a pool of block vectors into a codebook of exactly Size
// entries.
type Trainer struct {
	Size      int
	Clusterer Clusterer
	Logger    *slog.Logger
}

// NewTrainer returns a trainer for size prototypes using the default
// k-means clusterer.
func NewTrainer(size int) *Trainer {
	return &Trainer{Size: size, Clusterer: KMeans{}}
}

// Stats describes one training run.
type Stats struct {
	Vectors   int // training vectors supplied
	Requested int // configured size K
	Effective int // min(K, Vectors), the k handed to the clusterer
	Realized  int // prototypes the clusterer returned
	Backfill  int // entries cloned from the last realized prototype
}

// Train clusters the flattened vectors (n*dim).
//
// The clusterer is asked for min(Size, n) prototypes. If it realizes fewer
// than Size, the last realized prototype is cloned until the codebook holds
// exactly Size entries, so every caller can rely on a fixed K.
func (t *Trainer) Train(ctx context.Context, data []float32, dim int) (*Codebook, Stats, error) {
	if t.Size < 1 {
		return nil, Stats{}, fmt.Errorf("%w: %d", ErrInvalidSize, t.Size)
	}
	if dim <= 0 {
		return nil, Stats{}, &DimensionMismatchError{Expected: 1, Actual: dim}
	}
	if len(data)%dim != 0 {
		return nil, Stats{}, &DimensionMismatchError{Expected: dim, Actual: len(data) % dim}
	}
	n := len(data) / dim
	stats := Stats{Vectors: n, Requested: t.Size}
	if n == 0 {
		return nil, stats, ErrNoTrainingVectors
	}

	stats.Effective = min(t.Size, n)

	clusterer := t.Clusterer
	if clusterer == nil {
		clusterer = KMeans{}
	}
	protos, err := clusterer.Cluster(ctx, data, dim, stats.Effective)
	if err != nil {
		return nil, stats, fmt.Errorf("cluster: %w", err)
	}
	if len(protos) == 0 {
		return nil, stats, fmt.Errorf("cluster: %w: no prototypes returned", ErrNoTrainingVectors)
	}
	if len(protos)%dim != 0 {
		return nil, stats, &DimensionMismatchError{Expected: dim, Actual: len(protos) % dim}
	}
	stats.Realized = len(protos) / dim
	if stats.Realized > stats.Effective {
		return nil, stats, fmt.Errorf("cluster: %w: %d prototypes for k=%d", ErrInvalidSize, stats.Realized, stats.Effective)
	}

	flat := make([]float32, t.Size*dim)
	copy(flat, protos)
	last := protos[len(protos)-dim:]
	for i := stats.Realized; i < t.Size; i++ {
		copy(flat[i*dim:(i+1)*dim], last)
	}
	stats.Backfill = t.Size - stats.Realized

	t.logger().DebugContext(ctx, "codebook trained",
		"vectors", stats.Vectors,
		"size", stats.Requested,
		"effective", stats.Effective,
		"realized", stats.Realized,
		"backfill", stats.Backfill,
	)

	cb, err := New(dim, flat)
	if err != nil {
		return nil, stats, err
	}
	return cb, stats, nil
}

// TrainVectors is Train for individual vectors that must all share one length.
func (t *Trainer) TrainVectors(ctx context.Context, vectors [][]float32) (*Codebook, Stats, error) {
	if len(vectors) == 0 {
		return nil, Stats{Requested: t.Size}, ErrNoTrainingVectors
	}
	dim := len(vectors[0])
	flat := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, Stats{Requested: t.Size}, &DimensionMismatchError{Expected: dim, Actual: len(v)}
		}
		flat = append(flat, v...)
	}
	return t.Train(ctx, flat, dim)
}

func (t *Trainer) logger() *slog.Logger {
	if t.Logger == nil {
		return discard
	}
	return t.Logger
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))
