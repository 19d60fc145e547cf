package vqcodec

import (
	"log/slog"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/resource"
)

type options struct {
	cfg              Config
	edgesSet         bool
	clusterer        codebook.Clusterer
	controller       *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures a Codec.
type Option func(*options)

// WithConfig replaces the whole configuration, including edge policies.
// Later options still override individual fields.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
		o.edgesSet = true
	}
}

// WithPipeline selects the color transform. Unless edge policies are set
// explicitly, the pipeline's defaults apply.
func WithPipeline(kind colorspace.Kind) Option {
	return func(o *options) {
		o.cfg.Pipeline = kind
	}
}

// WithBlockSize configures the block geometry.
func WithBlockSize(width, height int) Option {
	return func(o *options) {
		o.cfg.Block = block.Geometry{Width: width, Height: height}
	}
}

// WithCodebookSize configures K, the entries per codebook.
func WithCodebookSize(k int) Option {
	return func(o *options) {
		o.cfg.CodebookSize = k
	}
}

// WithEdgePolicies configures how partial edge blocks are handled while
// training and while compressing.
//
// Example:
//
//	c, _ := vqcodec.New(vqcodec.WithEdgePolicies(block.PadReplicate, block.Truncate))
func WithEdgePolicies(train, encode block.EdgePolicy) Option {
	return func(o *options) {
		o.cfg.TrainEdge = train
		o.cfg.EncodeEdge = encode
		o.edgesSet = true
	}
}

// WithWorkers bounds the goroutines searching codebooks per plane.
// 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.Workers = n
	}
}

// WithSeed configures the k-means seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.cfg.Seed = seed
	}
}

// WithMaxIterations bounds Lloyd iterations of the default clusterer.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.cfg.MaxIterations = n
	}
}

// WithClusterer replaces the default k-means clusterer.
// If nil is passed, the default is used.
func WithClusterer(c codebook.Clusterer) Option {
	return func(o *options) {
		o.clusterer = c
	}
}

// WithResourceController shares a resource controller between codecs.
// Without one, the codec creates its own from Config.Resources.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vqcodec.BasicMetricsCollector{}
//	c, _ := vqcodec.New(vqcodec.WithMetricsCollector(metrics))
//	// ... use c ...
//	stats := metrics.GetStats()
//	fmt.Printf("Compressed: %d, clamped: %d\n", stats.CompressCount, stats.ClampCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vqcodec.NewJSONLogger(slog.LevelInfo)
//	c, _ := vqcodec.New(vqcodec.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cfg:              DefaultConfig(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if !o.edgesSet {
		o.cfg.TrainEdge, o.cfg.EncodeEdge = DefaultEdgePolicies(o.cfg.Pipeline)
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.controller == nil {
		o.controller = resource.NewController(o.cfg.Resources)
	}
	return o
}
