package vqcodec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/distortion"
	"github.com/hupe1980/vqcodec/vq"
)

var (
	// ErrInvalidConfig is returned for invalid block geometry, codebook size,
	// pipeline or edge policy.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingInput is returned when there is nothing to train on or
	// nothing to encode: no images, nil images, or images too small to
	// yield a single block.
	ErrMissingInput = errors.New("missing input")

	// ErrCodebookMismatch is returned when a codebook set does not fit the
	// codec or the compressed image it is asked to work with.
	ErrCodebookMismatch = errors.New("codebook set mismatch")
)

// ErrDimensionMismatch indicates a block/codebook length mismatch, an index
// grid that cannot cover the requested image, or images of different size.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("dimension mismatch: expected %d, got %d: %v", e.Expected, e.Actual, e.cause)
	}
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already translated.
	var own *ErrDimensionMismatch
	if errors.As(err, &own) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingInput) ||
		errors.Is(err, ErrCodebookMismatch) {
		return err
	}

	// Configuration.
	if errors.Is(err, block.ErrInvalidGeometry) ||
		errors.Is(err, block.ErrUnknownEdgePolicy) ||
		errors.Is(err, codebook.ErrInvalidSize) ||
		errors.Is(err, colorspace.ErrUnknownKind) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Dimensions.
	var cdm *codebook.DimensionMismatchError
	if errors.As(err, &cdm) {
		return &ErrDimensionMismatch{Expected: cdm.Expected, Actual: cdm.Actual, cause: err}
	}
	var gm *vq.GridMismatchError
	if errors.As(err, &gm) {
		rows := (gm.Height + gm.Geometry.Height - 1) / gm.Geometry.Height
		cols := (gm.Width + gm.Geometry.Width - 1) / gm.Geometry.Width
		return &ErrDimensionMismatch{Expected: rows * cols, Actual: gm.Rows * gm.Cols, cause: err}
	}
	var ddm *distortion.DimensionMismatchError
	if errors.As(err, &ddm) {
		return &ErrDimensionMismatch{
			Expected: ddm.Expected.X * ddm.Expected.Y,
			Actual:   ddm.Actual.X * ddm.Actual.Y,
			cause:    err,
		}
	}

	// Missing input.
	if errors.Is(err, codebook.ErrNoTrainingVectors) ||
		errors.Is(err, block.ErrEmptyInput) ||
		errors.Is(err, colorspace.ErrNilImage) ||
		errors.Is(err, distortion.ErrNilImage) {
		return fmt.Errorf("%w: %w", ErrMissingInput, err)
	}

	return err
}
