package vqcodec

import (
	"fmt"
	"os"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/resource"
	"gopkg.in/yaml.v3"
)

// Config describes one codec instance.
type Config struct {
	// Pipeline selects the color transform.
	Pipeline colorspace.Kind `yaml:"pipeline" json:"pipeline"`

	// Block is the block geometry shared by all planes.
	Block block.Geometry `yaml:"block" json:"block"`

	// CodebookSize is K, the number of entries of every codebook.
	CodebookSize int `yaml:"codebook_size" json:"codebook_size"`

	// TrainEdge is applied to planes while collecting training vectors.
	TrainEdge block.EdgePolicy `yaml:"train_edge" json:"train_edge"`

	// EncodeEdge is applied to planes while compressing.
	EncodeEdge block.EdgePolicy `yaml:"encode_edge" json:"encode_edge"`

	// Workers bounds the goroutines searching codebooks per plane.
	// 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`

	// Seed makes k-means training reproducible.
	Seed int64 `yaml:"seed" json:"seed"`

	// MaxIterations bounds Lloyd iterations. 0 uses the clusterer default.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`

	// Resources bounds concurrent training and artifact IO.
	Resources resource.Config `yaml:"resources" json:"resources"`
}

// DefaultConfig returns the direct RGB pipeline with 2x2 blocks and 256
// entries per codebook.
func DefaultConfig() Config {
	return DefaultConfigFor(colorspace.KindDirect)
}

// DefaultConfigFor returns the defaults of the given pipeline. The direct
// pipeline trains on zero-padded planes and truncates when compressing; the
// luma/chroma pipeline replicates edges in both stages.
func DefaultConfigFor(kind colorspace.Kind) Config {
	train, encode := DefaultEdgePolicies(kind)
	return Config{
		Pipeline:     kind,
		Block:        block.DefaultGeometry,
		CodebookSize: codebook.DefaultSize,
		TrainEdge:    train,
		EncodeEdge:   encode,
		Seed:         1,
		Resources: resource.Config{
			MaxConcurrentJobs: 3,
		},
	}
}

// DefaultEdgePolicies returns the training and encoding edge policies of a
// pipeline.
func DefaultEdgePolicies(kind colorspace.Kind) (train, encode block.EdgePolicy) {
	if kind == colorspace.KindLumaChroma {
		return block.PadReplicate, block.PadReplicate
	}
	return block.PadZero, block.Truncate
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if _, err := colorspace.New(c.Pipeline); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Block.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.CodebookSize < 1 {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, codebook.ErrInvalidSize, c.CodebookSize)
	}
	for _, p := range []block.EdgePolicy{c.TrainEdge, c.EncodeEdge} {
		if _, err := block.ParseEdgePolicy(p.String()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative workers %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: negative max iterations %d", ErrInvalidConfig, c.MaxIterations)
	}
	return nil
}

// fileConfig mirrors Config with optional edge policies, so a file that
// only names a pipeline gets that pipeline's defaults.
type fileConfig struct {
	Pipeline      *colorspace.Kind  `yaml:"pipeline"`
	Block         *block.Geometry   `yaml:"block"`
	CodebookSize  *int              `yaml:"codebook_size"`
	TrainEdge     *block.EdgePolicy `yaml:"train_edge"`
	EncodeEdge    *block.EdgePolicy `yaml:"encode_edge"`
	Workers       *int              `yaml:"workers"`
	Seed          *int64            `yaml:"seed"`
	MaxIterations *int              `yaml:"max_iterations"`
	Resources     *resource.Config  `yaml:"resources"`
}

// ParseConfig decodes a YAML document. Missing fields take the defaults of
// the configured pipeline.
func ParseConfig(data []byte) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	kind := colorspace.KindDirect
	if fc.Pipeline != nil {
		kind = *fc.Pipeline
	}
	cfg := DefaultConfigFor(kind)
	if fc.Block != nil {
		cfg.Block = *fc.Block
	}
	if fc.CodebookSize != nil {
		cfg.CodebookSize = *fc.CodebookSize
	}
	if fc.TrainEdge != nil {
		cfg.TrainEdge = *fc.TrainEdge
	}
	if fc.EncodeEdge != nil {
		cfg.EncodeEdge = *fc.EncodeEdge
	}
	if fc.Workers != nil {
		cfg.Workers = *fc.Workers
	}
	if fc.Seed != nil {
		cfg.Seed = *fc.Seed
	}
	if fc.MaxIterations != nil {
		cfg.MaxIterations = *fc.MaxIterations
	}
	if fc.Resources != nil {
		cfg.Resources = *fc.Resources
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}
