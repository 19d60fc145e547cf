package catalog

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/colorspace"
)

// ManifestVersion is the current manifest layout.
const ManifestVersion = 1

// ErrManifestVersion is returned for manifests newer than ManifestVersion.
var ErrManifestVersion = errors.New("catalog: unsupported manifest version")

// SetEntry describes a stored codebook set.
type SetEntry struct {
	ID           string          `json:"id"`
	Pipeline     colorspace.Kind `json:"pipeline"`
	Block        block.Geometry  `json:"block"`
	CodebookSize int             `json:"codebook_size"`
	Roles        []string        `json:"roles"`
	Blob         string          `json:"blob"`
	Size         int64           `json:"size"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ImageEntry describes a stored compressed image.
type ImageEntry struct {
	Name        string          `json:"name"`
	CodebookID  string          `json:"codebook_id"`
	Pipeline    colorspace.Kind `json:"pipeline"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Blocks      int             `json:"blocks"`
	PayloadBits int             `json:"payload_bits"`
	Blob        string          `json:"blob"`
	Size        int64           `json:"size"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Manifest indexes every artifact in a catalog.
type Manifest struct {
	Version   int                   `json:"version"`
	UpdatedAt time.Time             `json:"updated_at"`
	Sets      map[string]SetEntry   `json:"sets"`
	Images    map[string]ImageEntry `json:"images"`

	// Generation is the commit the manifest was loaded from or written as.
	// The committer records it, so it is not part of the encoded body.
	Generation uint64 `json:"-"`
}

func newManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Sets:    make(map[string]SetEntry),
		Images:  make(map[string]ImageEntry),
	}
}

func (m *Manifest) clone() *Manifest {
	out := *m
	out.Sets = maps.Clone(m.Sets)
	out.Images = maps.Clone(m.Images)
	return &out
}

// SortedSets returns the set entries ordered by ID.
func (m *Manifest) SortedSets() []SetEntry {
	return sortedValues(m.Sets)
}

// SortedImages returns the image entries ordered by name.
func (m *Manifest) SortedImages() []ImageEntry {
	return sortedValues(m.Images)
}

func sortedValues[V any](m map[string]V) []V {
	out := make([]V, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[k])
	}
	return out
}

// manifestBlobName returns a fresh blob name for generation gen. The random
// suffix keeps losers of a commit race from clobbering the winner's blob.
func manifestBlobName(gen uint64) string {
	return fmt.Sprintf("%s%020d-%s.json", manifestPrefix, gen, uuid.NewString())
}

func parseManifestGeneration(name string) (uint64, bool) {
	digits, _, ok := strings.Cut(strings.TrimPrefix(name, manifestPrefix), "-")
	if !ok {
		return 0, false
	}
	gen, err := strconv.ParseUint(digits, 10, 64)
	return gen, err == nil
}
