package kmeans

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/hupe1980/vqcodec/distance"
	"golang.org/x/sync/errgroup"
)

// ErrNoVectors is returned when there is nothing to cluster.
var ErrNoVectors = errors.New("no vectors to cluster")

// DefaultMaxIterations bounds Lloyd iterations when Options.MaxIterations is unset.
const DefaultMaxIterations = 100

// minChunk is the smallest number of vectors handed to one assignment worker.
const minChunk = 4096

// Options configures a training run.
type Options struct {
	// MaxIterations bounds the number of Lloyd iterations.
	MaxIterations int
	// Seed drives k-means++ seeding.
	Seed int64
	// Metric selects the distance used for assignment.
	Metric distance.Metric
	// Workers bounds the assignment step fan-out. 0 means GOMAXPROCS.
	Workers int
}

// Train clusters the flattened vectors (n * dim) into at most k centroids
// and returns the flattened centroids (realized * dim), 1 <= realized <= k.
func Train(ctx context.Context, vectors []float32, dim, k int, opts Options) ([]float32, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	if len(vectors)%dim != 0 {
		return nil, fmt.Errorf("vector data length %d is not a multiple of dimension %d", len(vectors), dim)
	}
	n := len(vectors) / dim
	if n == 0 {
		return nil, ErrNoVectors
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if k > n {
		k = n
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	centroids := seedPlusPlus(vectors, dim, n, k, rng, distFunc)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float64, k*dim)

	for range opts.MaxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		changed, err := assign(ctx, vectors, dim, centroids, assignments, distFunc, opts.Workers)
		if err != nil {
			return nil, err
		}
		if !changed {
			break
		}

		// Update step
		clear(sums)
		clear(counts)
		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d, v := range vec {
				sums[cluster*dim+d] += float64(v)
			}
			counts[cluster]++
		}
		for j := 0; j < k; j++ {
			if counts[j] == 0 {
				// Empty clusters keep their centroid and are dropped at the end.
				continue
			}
			scale := 1.0 / float64(counts[j])
			for d := 0; d < dim; d++ {
				centroids[j*dim+d] = float32(sums[j*dim+d] * scale)
			}
		}
	}

	// Final membership against the converged centroids.
	if _, err := assign(ctx, vectors, dim, centroids, assignments, distFunc, opts.Workers); err != nil {
		return nil, err
	}
	clear(counts)
	for _, a := range assignments {
		counts[a]++
	}

	out := make([]float32, 0, k*dim)
	for j := 0; j < k; j++ {
		if counts[j] > 0 {
			out = append(out, centroids[j*dim:(j+1)*dim]...)
		}
	}
	return out, nil
}

// seedPlusPlus picks k initial centroids, each subsequent one sampled with
// probability proportional to its squared distance from the chosen set.
func seedPlusPlus(vectors []float32, dim, n, k int, rng *rand.Rand, distFunc distance.Func) []float32 {
	centroids := make([]float32, k*dim)

	first := rng.Intn(n)
	copy(centroids[:dim], vectors[first*dim:(first+1)*dim])

	// minDistSq tracks each vector's squared distance to its nearest chosen centroid.
	minDistSq := make([]float64, n)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(distFunc(vectors[i*dim:(i+1)*dim], centroids[:dim]))
		minDistSq[i] = d
		sum += d
	}

	for c := 1; c < k; c++ {
		dst := centroids[c*dim : (c+1)*dim]
		if sum == 0 {
			idx := rng.Intn(n)
			copy(dst, vectors[idx*dim:(idx+1)*dim])
			continue
		}

		target := rng.Float64() * sum
		var cumsum float64
		chosen := n - 1
		for i, d := range minDistSq {
			cumsum += d
			if d > 0 && cumsum >= target {
				chosen = i
				break
			}
		}
		copy(dst, vectors[chosen*dim:(chosen+1)*dim])

		sum = 0
		for i := 0; i < n; i++ {
			d := float64(distFunc(vectors[i*dim:(i+1)*dim], dst))
			if d < minDistSq[i] {
				minDistSq[i] = d
			}
			sum += minDistSq[i]
		}
	}

	return centroids
}

// assign recomputes the nearest centroid for every vector. Workers own
// disjoint ranges of assignments.
func assign(ctx context.Context, vectors []float32, dim int, centroids []float32, assignments []int, distFunc distance.Func, workers int) (bool, error) {
	n := len(assignments)
	chunk := max(minChunk, (n+workers-1)/workers)
	parts := (n + chunk - 1) / chunk
	changed := make([]bool, parts)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for p := 0; p < parts; p++ {
		start := p * chunk
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				best, _ := nearest(vectors[i*dim:(i+1)*dim], centroids, dim, distFunc)
				if assignments[i] != best {
					assignments[i] = best
					changed[p] = true
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, c := range changed {
		if c {
			return true, nil
		}
	}
	return false, nil
}

func nearest(vec, centroids []float32, dim int, distFunc distance.Func) (int, float32) {
	best := 0
	minDist := float32(math.MaxFloat32)
	k := len(centroids) / dim
	for j := 0; j < k; j++ {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best, minDist
}

// Nearest returns the index of the centroid closest to vec by squared L2
// distance and that distance. Ties resolve to the lowest index.
func Nearest(vec, centroids []float32, dim int) (int, float32) {
	return nearest(vec, centroids, dim, distance.SquaredL2)
}
