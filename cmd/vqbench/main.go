// Command vqbench trains a codebook set on a corpus of images, compresses
// and reconstructs every test image and reports the distortion.
//
//	vqbench -train training -test testing -pipeline luma-chroma -out results
//
// Both corpus roots hold one subdirectory per category. Artifacts can be
// stored in a local directory, S3 or MinIO with -store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/catalog"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/container"
	"github.com/hupe1980/vqcodec/corpus"
	"github.com/hupe1980/vqcodec/distortion"
	vqprom "github.com/hupe1980/vqcodec/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "vqbench:", err)
		}
		os.Exit(1)
	}
}

type flags struct {
	trainDir     string
	testDir      string
	categories   string
	trainLimit   int
	testLimit    int
	configPath   string
	pipeline     string
	codebookSize int
	blockSize    int
	seed         int64
	workers      int
	outDir       string
	store        string
	compression  string
	cacheBytes   int64
	ioRate       int64
	metricsAddr  string
	logFormat    string
	verbose      bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, map[string]bool, error) {
	f := &flags{}
	fs := flag.NewFlagSet("vqbench", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.trainDir, "train", "training", "training corpus root")
	fs.StringVar(&f.testDir, "test", "testing", "test corpus root")
	fs.StringVar(&f.categories, "categories", "nature,faces,animals", "comma-separated category subdirectories")
	fs.IntVar(&f.trainLimit, "train-limit", corpus.TrainingPerCategory, "training images per category")
	fs.IntVar(&f.testLimit, "test-limit", corpus.TestingPerCategory, "test images per category")
	fs.StringVar(&f.configPath, "config", "", "YAML codec configuration")
	fs.StringVar(&f.pipeline, "pipeline", colorspace.KindDirect.String(), "pipeline: direct or luma-chroma")
	fs.IntVar(&f.codebookSize, "k", 256, "entries per codebook")
	fs.IntVar(&f.blockSize, "block", 2, "square block size")
	fs.Int64Var(&f.seed, "seed", 1, "k-means seed")
	fs.IntVar(&f.workers, "workers", 0, "encoding goroutines per plane (0 = GOMAXPROCS)")
	fs.StringVar(&f.outDir, "out", "", "directory for original and reconstructed PNGs")
	fs.StringVar(&f.store, "store", "", "artifact store: mem://, a directory, s3://bucket/prefix[?ddb_table=commits] or minio://host/bucket/prefix")
	fs.StringVar(&f.compression, "compression", container.CompressionZSTD.String(), "artifact compression: none, lz4 or zstd")
	fs.Int64Var(&f.cacheBytes, "cache-bytes", 0, "block cache for remote stores (0 disables)")
	fs.Int64Var(&f.ioRate, "io-rate", 0, "artifact IO limit in bytes per second (0 = unlimited)")
	fs.StringVar(&f.metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :2112")
	fs.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if f.trainLimit < 0 || f.testLimit < 0 {
		return nil, nil, fmt.Errorf("%w: -train-limit %d, -test-limit %d", corpus.ErrInvalidLimit, f.trainLimit, f.testLimit)
	}

	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set, nil
}

// codecOptions merges the config file with explicitly set flags.
func (f *flags) codecOptions(set map[string]bool) ([]vqcodec.Option, vqcodec.Config, error) {
	cfg := vqcodec.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = vqcodec.LoadConfig(f.configPath); err != nil {
			return nil, cfg, err
		}
	}

	if set["pipeline"] || f.configPath == "" {
		kind, err := colorspace.ParseKind(f.pipeline)
		if err != nil {
			return nil, cfg, fmt.Errorf("%w: %w", vqcodec.ErrInvalidConfig, err)
		}
		if kind != cfg.Pipeline {
			cfg.Pipeline = kind
			cfg.TrainEdge, cfg.EncodeEdge = vqcodec.DefaultEdgePolicies(kind)
		}
	}
	if set["k"] || f.configPath == "" {
		cfg.CodebookSize = f.codebookSize
	}
	if set["block"] || f.configPath == "" {
		cfg.Block.Width, cfg.Block.Height = f.blockSize, f.blockSize
	}
	if set["seed"] {
		cfg.Seed = f.seed
	}
	if set["workers"] {
		cfg.Workers = f.workers
	}
	if set["io-rate"] {
		cfg.Resources.IOLimitBytesPerSec = f.ioRate
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	return []vqcodec.Option{vqcodec.WithConfig(cfg)}, cfg, nil
}

func (f *flags) logger(w io.Writer) *vqcodec.Logger {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if f.logFormat == "json" {
		return vqcodec.NewLogger(slog.NewJSONHandler(w, opts))
	}
	return vqcodec.NewLogger(slog.NewTextHandler(w, opts))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, explicit, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	opts, cfg, err := f.codecOptions(explicit)
	if err != nil {
		return err
	}
	compression, err := container.ParseCompression(f.compression)
	if err != nil {
		return err
	}

	logger := f.logger(stderr)
	opts = append(opts, vqcodec.WithLogger(logger))

	reg := prometheus.NewRegistry()
	mc, err := vqprom.NewCollector(reg)
	if err != nil {
		return err
	}
	opts = append(opts, vqcodec.WithMetricsCollector(mc))

	if f.metricsAddr != "" {
		srv := &http.Server{
			Addr:              f.metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", "addr", f.metricsAddr)
	}

	c, err := vqcodec.New(opts...)
	if err != nil {
		return err
	}

	categories := splitList(f.categories)
	loadOpts := []corpus.Option{corpus.WithLogger(logger.Logger)}

	training, err := corpus.LoadCategories(ctx, f.trainDir, categories, f.trainLimit, loadOpts...)
	if err != nil {
		return fmt.Errorf("training corpus: %w", err)
	}
	evaluation, err := corpus.LoadCategories(ctx, f.testDir, categories, f.testLimit, loadOpts...)
	if err != nil {
		return fmt.Errorf("test corpus: %w", err)
	}
	logger.Info("corpus loaded", "training", len(training), "testing", len(evaluation), "pipeline", cfg.Pipeline.String())

	start := time.Now()
	set, err := c.Train(ctx, corpus.Images(training))
	if err != nil {
		return err
	}
	logger.WithCodebookSet(set.ID).Info("codebook set trained", "codebook_size", set.Size(), "elapsed", time.Since(start))

	var cat *catalog.Catalog
	if f.store != "" {
		store, committer, err := openStore(ctx, f.store, f.cacheBytes, c.Controller())
		if err != nil {
			return err
		}
		cat, err = catalog.New(ctx, store,
			catalog.WithCommitter(committer),
			catalog.WithCompression(compression),
			catalog.WithResourceController(c.Controller()),
			catalog.WithLogger(logger.Logger),
		)
		if err != nil {
			return err
		}
		if _, err := cat.PutCodebookSet(ctx, set); err != nil {
			return err
		}
	}

	report := distortion.NewReport()
	for i, img := range evaluation {
		comp, err := c.Compress(ctx, set, img.Image)
		if err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}

		if cat != nil {
			if _, err := cat.PutCompressed(ctx, artifactName(img.Name), comp); err != nil {
				return fmt.Errorf("%s: %w", img.Name, err)
			}
			// Reconstruct from the stored artifact.
			if comp, err = cat.GetCompressed(ctx, artifactName(img.Name)); err != nil {
				return fmt.Errorf("%s: %w", img.Name, err)
			}
		}

		out, err := c.Decompress(ctx, set, comp)
		if err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
		mse, err := distortion.MSE(img.Image, out)
		if err != nil {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
		report.Add(img.Name, mse)

		if f.outDir != "" {
			if err := corpus.WritePNG(filepath.Join(f.outDir, fmt.Sprintf("original_%d.png", i)), img.Image); err != nil {
				return err
			}
			if err := corpus.WritePNG(filepath.Join(f.outDir, fmt.Sprintf("reconstructed_%d.png", i)), out); err != nil {
				return err
			}
		}
		fmt.Fprintf(stdout, "Image %d MSE: %.2f\n", i, mse)
	}

	mean, std := report.MeanStdDev()
	fmt.Fprintf(stdout, "Average MSE: %.2f\n", mean)
	fmt.Fprintf(stdout, "MSE std dev: %.2f\n", std)
	fmt.Fprintf(stdout, "Compression ratio: %g\n", c.CompressionRatio())
	return nil
}

// artifactName maps a corpus file name to a catalog image name.
func artifactName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
