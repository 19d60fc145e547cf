package vqcodec

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
)

// codebookSetNamespace scopes content-derived codebook set IDs.
var codebookSetNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vqcodec/codebook-set"))

// CodebookSet holds one trained codebook per plane of a pipeline. A set is
// read-only once trained and may be shared by concurrent compressions.
type CodebookSet struct {
	// ID is derived from the set's content. Compressed images reference it.
	ID        string
	Pipeline  colorspace.Kind
	Block     block.Geometry
	Roles     []string
	Codebooks []*codebook.Codebook
	// Stats describes how each codebook was trained. It is not persisted.
	Stats []codebook.Stats
}

// Codebook returns the codebook of role, or nil.
func (s *CodebookSet) Codebook(role string) *codebook.Codebook {
	for i, r := range s.Roles {
		if r == role {
			return s.Codebooks[i]
		}
	}
	return nil
}

// Size returns the number of entries per codebook, or 0 for an empty set.
func (s *CodebookSet) Size() int {
	if len(s.Codebooks) == 0 || s.Codebooks[0] == nil {
		return 0
	}
	return s.Codebooks[0].Len()
}

// Fingerprint derives a name-based UUID from the pipeline, the geometry and
// every codebook entry. Equal sets always share a fingerprint.
func (s *CodebookSet) Fingerprint() (string, error) {
	payload := []byte(fmt.Sprintf("%s/%s/%d;", s.Pipeline, s.Block, len(s.Codebooks)))
	for i, cb := range s.Codebooks {
		if cb == nil {
			return "", fmt.Errorf("%w: missing codebook %d", ErrCodebookMismatch, i)
		}
		data, err := cb.MarshalBinary()
		if err != nil {
			return "", err
		}
		payload = append(payload, data...)
	}
	return uuid.NewSHA1(codebookSetNamespace, payload).String(), nil
}

// Validate checks that the set is complete and consistent with its
// geometry.
func (s *CodebookSet) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil codebook set", ErrMissingInput)
	}
	if len(s.Roles) == 0 || len(s.Roles) != len(s.Codebooks) {
		return fmt.Errorf("%w: %d roles for %d codebooks", ErrCodebookMismatch, len(s.Roles), len(s.Codebooks))
	}
	for i, cb := range s.Codebooks {
		if cb == nil {
			return fmt.Errorf("%w: missing codebook for %s", ErrCodebookMismatch, s.Roles[i])
		}
		if cb.Dim() != s.Block.Area() {
			return &ErrDimensionMismatch{
				Expected: s.Block.Area(),
				Actual:   cb.Dim(),
				cause:    &codebook.DimensionMismatchError{Expected: s.Block.Area(), Actual: cb.Dim()},
			}
		}
	}
	return nil
}
