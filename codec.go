package vqcodec

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/channel"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/distortion"
	"github.com/hupe1980/vqcodec/resource"
	"github.com/hupe1980/vqcodec/vq"
	"golang.org/x/sync/errgroup"
)

// Codec trains codebook sets and compresses images with them.
//
// A Codec is safe for concurrent use. It holds no per-image state; every
// operation works on the codebook set passed to it.
type Codec struct {
	cfg       Config
	transform colorspace.Transform
	clusterer codebook.Clusterer
	encoder   *vq.Encoder
	rc        *resource.Controller
	logger    *Logger
	metrics   MetricsCollector
}

// New creates a codec.
//
// Example:
//
//	c, err := vqcodec.New(
//	    vqcodec.WithPipeline(colorspace.KindLumaChroma),
//	    vqcodec.WithCodebookSize(256),
//	)
func New(optFns ...Option) (*Codec, error) {
	o := applyOptions(optFns)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	transform, err := colorspace.New(o.cfg.Pipeline)
	if err != nil {
		return nil, translateError(err)
	}

	clusterer := o.clusterer
	if clusterer == nil {
		clusterer = codebook.KMeans{
			MaxIterations: o.cfg.MaxIterations,
			Seed:          o.cfg.Seed,
			Workers:       o.cfg.Workers,
		}
	}

	return &Codec{
		cfg:       o.cfg,
		transform: transform,
		clusterer: clusterer,
		encoder:   &vq.Encoder{Workers: o.cfg.Workers},
		rc:        o.controller,
		logger:    o.logger,
		metrics:   o.metricsCollector,
	}, nil
}

// Config returns the effective configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// Transform returns the color transform of the pipeline.
func (c *Codec) Transform() colorspace.Transform {
	return c.transform
}

// Controller returns the resource controller the codec draws from.
func (c *Codec) Controller() *resource.Controller {
	return c.rc
}

// Train learns one codebook per plane from images.
//
// Planes too small to yield a block under the training edge policy are
// skipped. Per-plane training runs concurrently, bounded by the resource
// controller. Canceling ctx aborts the whole run.
func (c *Codec) Train(ctx context.Context, images []image.Image) (*CodebookSet, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no training images", ErrMissingInput)
	}

	roles := c.transform.Roles()
	pools := make([][]float32, len(roles))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if img == nil {
			return nil, fmt.Errorf("%w: training image %d is nil", ErrMissingInput, i)
		}
		planes, err := c.transform.Forward(img)
		if err != nil {
			return nil, translateError(err)
		}
		for r, p := range planes {
			grid, err := block.Extract(p, c.cfg.Block, c.cfg.TrainEdge)
			if errors.Is(err, block.ErrEmptyInput) {
				c.logger.DebugContext(ctx, "skipping plane without blocks",
					"role", roles[r],
					"image", i,
					"width", p.Width,
					"height", p.Height,
				)
				continue
			}
			if err != nil {
				return nil, translateError(err)
			}
			pools[r] = append(pools[r], grid.Data...)
		}
	}

	set := &CodebookSet{
		Pipeline:  c.cfg.Pipeline,
		Block:     c.cfg.Block,
		Roles:     roles,
		Codebooks: make([]*codebook.Codebook, len(roles)),
		Stats:     make([]codebook.Stats, len(roles)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for r, role := range roles {
		g.Go(func() error {
			if err := c.rc.AcquireJob(gctx); err != nil {
				return err
			}
			defer c.rc.ReleaseJob()

			size := int64(len(pools[r])) * 4
			if err := c.rc.AcquireMemory(gctx, size); err != nil {
				return err
			}
			defer c.rc.ReleaseMemory(size)

			start := time.Now()
			trainer := &codebook.Trainer{
				Size:      c.cfg.CodebookSize,
				Clusterer: c.clusterer,
				Logger:    c.logger.WithRole(role).Logger,
			}
			cb, stats, err := trainer.Train(gctx, pools[r], c.cfg.Block.Area())
			c.metrics.RecordTrain(role, stats.Vectors, time.Since(start), err)
			c.logger.LogTrain(gctx, role, stats, err)
			if err != nil {
				return fmt.Errorf("train %s: %w", role, err)
			}

			set.Codebooks[r] = cb
			set.Stats[r] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, translateError(err)
	}

	id, err := set.Fingerprint()
	if err != nil {
		return nil, err
	}
	set.ID = id
	return set, nil
}

// Compress encodes img with set.
func (c *Codec) Compress(ctx context.Context, set *CodebookSet, img image.Image) (*Compressed, error) {
	start := time.Now()
	comp, err := c.compress(ctx, set, img)

	var w, h, blocks int
	if img != nil {
		w, h = img.Bounds().Dx(), img.Bounds().Dy()
	}
	if comp != nil {
		blocks = comp.Blocks()
	}
	c.metrics.RecordCompress(blocks, time.Since(start), err)
	c.logger.LogCompress(ctx, w, h, blocks, err)
	return comp, err
}

func (c *Codec) compress(ctx context.Context, set *CodebookSet, img image.Image) (*Compressed, error) {
	if err := c.checkSet(set); err != nil {
		return nil, err
	}
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrMissingInput)
	}

	planes, err := c.transform.Forward(img)
	if err != nil {
		return nil, translateError(err)
	}

	grids := make([]*vq.IndexGrid, len(planes))
	g, gctx := errgroup.WithContext(ctx)
	for r, p := range planes {
		g.Go(func() error {
			grid, err := c.encoder.EncodeChannel(gctx, p, set.Codebooks[r], c.cfg.Block, c.cfg.EncodeEdge)
			if err != nil {
				return fmt.Errorf("encode %s: %w", set.Roles[r], err)
			}
			grids[r] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, translateError(err)
	}

	b := img.Bounds()
	return &Compressed{
		CodebookID: set.ID,
		Pipeline:   set.Pipeline,
		Block:      set.Block,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Grids:      grids,
	}, nil
}

// Decompress rebuilds the image described by comp using set. Out-of-range
// indices are clamped into the codebook, logged and counted, never fatal.
func (c *Codec) Decompress(ctx context.Context, set *CodebookSet, comp *Compressed) (*image.RGBA, error) {
	start := time.Now()
	img, clamped, err := c.decompress(ctx, set, comp)

	var w, h, blocks int
	if comp != nil {
		w, h, blocks = comp.Width, comp.Height, comp.Blocks()
	}
	c.metrics.RecordDecompress(blocks, time.Since(start), err)
	c.logger.LogDecompress(ctx, w, h, clamped, err)
	return img, err
}

func (c *Codec) decompress(ctx context.Context, set *CodebookSet, comp *Compressed) (*image.RGBA, int, error) {
	if comp == nil {
		return nil, 0, fmt.Errorf("%w: nil compressed image", ErrMissingInput)
	}
	if err := c.checkSet(set); err != nil {
		return nil, 0, err
	}
	if comp.CodebookID != "" && set.ID != "" && comp.CodebookID != set.ID {
		return nil, 0, fmt.Errorf("%w: image references %s, got %s", ErrCodebookMismatch, comp.CodebookID, set.ID)
	}
	if comp.Pipeline != set.Pipeline || comp.Block != set.Block {
		return nil, 0, fmt.Errorf("%w: image is %s/%s, set is %s/%s",
			ErrCodebookMismatch, comp.Pipeline, comp.Block, set.Pipeline, set.Block)
	}
	if len(comp.Grids) != len(set.Roles) {
		return nil, 0, fmt.Errorf("%w: %d grids for %d planes", ErrCodebookMismatch, len(comp.Grids), len(set.Roles))
	}
	if comp.Width < 0 || comp.Height < 0 {
		return nil, 0, &ErrDimensionMismatch{Expected: 0, Actual: min(comp.Width, comp.Height)}
	}

	planes := make([]*channel.Channel, len(comp.Grids))
	clamped := make([]int, len(comp.Grids))
	g, gctx := errgroup.WithContext(ctx)
	for r, grid := range comp.Grids {
		role := set.Roles[r]
		g.Go(func() error {
			if grid == nil {
				return fmt.Errorf("%w: missing grid for %s", ErrMissingInput, role)
			}
			dec := &vq.Decoder{
				Logger:  c.logger.WithRole(role).Logger,
				OnClamp: func(int, int) { c.metrics.RecordClamp(role) },
			}
			pw, ph := c.transform.PlaneSize(r, comp.Width, comp.Height)
			ch, stats, err := dec.Decode(gctx, grid, set.Codebooks[r], comp.Block, pw, ph)
			if err != nil {
				return fmt.Errorf("decode %s: %w", role, err)
			}
			planes[r] = ch
			clamped[r] = stats.Clamped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, translateError(err)
	}

	total := 0
	for _, n := range clamped {
		total += n
	}

	img, err := c.transform.Inverse(planes, comp.Width, comp.Height)
	if err != nil {
		return nil, total, err
	}
	return img, total, nil
}

// Evaluate compresses and reconstructs every image and reports its mean
// squared error. names labels the entries; missing names fall back to the
// image position.
func (c *Codec) Evaluate(ctx context.Context, set *CodebookSet, images []image.Image, names []string) (*distortion.Report, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images to evaluate", ErrMissingInput)
	}

	report := distortion.NewReport()
	for i, img := range images {
		name := fmt.Sprintf("image-%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}

		comp, err := c.Compress(ctx, set, img)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out, err := c.Decompress(ctx, set, comp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		mse, err := distortion.MSE(img, out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, translateError(err))
		}
		report.Add(name, mse)

		c.logger.WithImage(name).DebugContext(ctx, "image evaluated",
			"mse", mse,
			"psnr", distortion.PSNR(mse),
			"utilization", comp.Utilization(),
		)
	}
	return report, nil
}

// CompressionRatio returns the nominal ratio between 24-bit RGB and the
// index payload: bits per index over block area, weighted by each plane's
// share of the image. Direct 2x2 with K=256 gives 4, luma/chroma gives 8.
func (c *Codec) CompressionRatio() float64 {
	const side = 1 << 10
	perIndex := float64(indexBits(c.cfg.CodebookSize)) / float64(c.cfg.Block.Area())

	var bitsPerPixel float64
	for r := range c.transform.Roles() {
		pw, ph := c.transform.PlaneSize(r, side, side)
		bitsPerPixel += perIndex * float64(pw*ph) / float64(side*side)
	}
	return 24 / bitsPerPixel
}

func (c *Codec) checkSet(set *CodebookSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if set.Pipeline != c.cfg.Pipeline {
		return fmt.Errorf("%w: set pipeline %s, codec pipeline %s", ErrCodebookMismatch, set.Pipeline, c.cfg.Pipeline)
	}
	if set.Block != c.cfg.Block {
		return fmt.Errorf("%w: set blocks %s, codec blocks %s", ErrCodebookMismatch, set.Block, c.cfg.Block)
	}
	if len(set.Roles) != len(c.transform.Roles()) {
		return fmt.Errorf("%w: set has %d planes, pipeline has %d", ErrCodebookMismatch, len(set.Roles), len(c.transform.Roles()))
	}
	return nil
}
