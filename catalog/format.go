package catalog

import (
	"bytes"
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// ManifestFormat selects how manifests are serialized. The first line of
// every manifest blob names its format, so a catalog reads manifests of any
// known format regardless of the one it writes.
type ManifestFormat string

const (
	// FormatCompact is single-line JSON, the default.
	FormatCompact ManifestFormat = "compact"
	// FormatIndented is two-space indented JSON for catalogs inspected by
	// hand.
	FormatIndented ManifestFormat = "indented"
)

// ErrUnknownFormat is returned for manifests written in a format this build
// does not know.
var ErrUnknownFormat = errors.New("catalog: unknown manifest format")

// ParseManifestFormat parses a format name.
func ParseManifestFormat(s string) (ManifestFormat, error) {
	switch f := ManifestFormat(s); f {
	case FormatCompact, FormatIndented:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f ManifestFormat) marshal(m *Manifest) ([]byte, error) {
	switch f {
	case FormatCompact:
		return gojson.Marshal(m)
	case FormatIndented:
		return gojson.MarshalIndent(m, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// encodeManifest writes the format name on the first line followed by the
// encoded manifest.
func encodeManifest(f ManifestFormat, m *Manifest) ([]byte, error) {
	body, err := f.marshal(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(f)+1+len(body))
	out = append(out, f...)
	out = append(out, '\n')
	return append(out, body...), nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	header, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return nil, fmt.Errorf("%w: missing format header", ErrUnknownFormat)
	}
	if _, err := ParseManifestFormat(string(header)); err != nil {
		return nil, err
	}

	m := newManifest()
	if err := gojson.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("catalog: decode manifest: %w", err)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("%w: %d", ErrManifestVersion, m.Version)
	}
	if m.Sets == nil {
		m.Sets = make(map[string]SetEntry)
	}
	if m.Images == nil {
		m.Images = make(map[string]ImageEntry)
	}
	return m, nil
}
