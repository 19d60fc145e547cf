// Package container defines the binary artifact format for codebook sets
// and compressed images.
//
// Every artifact is one frame:
//
//	magic    [4]byte  "VQCA"
//	version  uint8
//	kind     uint8    codebook set or compressed image
//	comp     uint8    payload compression (none, lz4, zstd)
//	reserved uint8
//	size     uint32   uncompressed payload length
//	stored   uint32   stored payload length
//	checksum uint32   CRC32C of the stored payload
//	payload  [stored]byte
//
// All integers are little-endian.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/vqcodec/internal/conv"
)

const (
	// Version is the current frame version.
	Version = 1

	headerSize = 20

	// maxPayload bounds the payload accepted by Read.
	maxPayload = 1 << 30
)

var magic = [4]byte{'V', 'Q', 'C', 'A'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	// ErrBadMagic is returned for data that is not a frame.
	ErrBadMagic = errors.New("container: bad magic")
	// ErrUnsupportedVersion is returned for frames newer than Version.
	ErrUnsupportedVersion = errors.New("container: unsupported version")
	// ErrChecksum is returned when the stored payload fails verification.
	ErrChecksum = errors.New("container: checksum mismatch")
	// ErrCorrupt is returned for truncated or inconsistent data.
	ErrCorrupt = errors.New("container: corrupt data")
	// ErrKindMismatch is returned when a frame holds a different artifact.
	ErrKindMismatch = errors.New("container: unexpected artifact kind")
	// ErrUnknownCompression is returned for unknown compression types.
	ErrUnknownCompression = errors.New("container: unknown compression")
	// ErrFieldOverflow is returned when a size or count does not fit its
	// field.
	ErrFieldOverflow = errors.New("container: value does not fit field")
)

// Kind identifies the artifact in a frame.
type Kind uint8

const (
	// KindCodebookSet marks a trained codebook set.
	KindCodebookSet Kind = 1
	// KindCompressed marks a compressed image.
	KindCompressed Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindCodebookSet:
		return "codebook-set"
	case KindCompressed:
		return "compressed"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Header describes a frame.
type Header struct {
	Version     uint8
	Kind        Kind
	Compression Compression
	Size        uint32
	Stored      uint32
	Checksum    uint32
}

// Seal wraps payload into a frame, compressing it with c when that pays
// off.
func Seal(kind Kind, payload []byte, c Compression) ([]byte, error) {
	size, err := conv.ToUnsigned[uint32](len(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrFieldOverflow, err)
	}
	stored, applied, err := compress(payload, c)
	if err != nil {
		return nil, err
	}
	h := Header{
		Version:     Version,
		Kind:        kind,
		Compression: applied,
		Size:        size,
		Stored:      uint32(len(stored)),
		Checksum:    crc32.Checksum(stored, castagnoli),
	}
	out := make([]byte, headerSize+len(stored))
	putHeader(out, h)
	copy(out[headerSize:], stored)
	return out, nil
}

// Open verifies a frame and returns its header and uncompressed payload.
func Open(data []byte) (Header, []byte, error) {
	h, err := parseHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	if uint64(len(data)-headerSize) != uint64(h.Stored) {
		return h, nil, fmt.Errorf("%w: frame has %d payload bytes, header says %d", ErrCorrupt, len(data)-headerSize, h.Stored)
	}
	stored := data[headerSize:]
	if crc32.Checksum(stored, castagnoli) != h.Checksum {
		return h, nil, ErrChecksum
	}
	payload, err := decompress(stored, h.Compression, int(h.Size))
	if err != nil {
		return h, nil, err
	}
	return h, payload, nil
}

// Write seals payload and writes the frame to w.
func Write(w io.Writer, kind Kind, payload []byte, c Compression) (int, error) {
	frame, err := Seal(kind, payload, c)
	if err != nil {
		return 0, err
	}
	return w.Write(frame)
}

// Read reads exactly one frame from r.
func Read(r io.Reader) (Header, []byte, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, nil, fmt.Errorf("%w: short header", ErrCorrupt)
		}
		return Header{}, nil, err
	}
	h, err := parseHeader(buf)
	if err != nil {
		return Header{}, nil, err
	}
	if h.Stored > maxPayload || h.Size > maxPayload {
		return h, nil, fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrCorrupt, max(h.Stored, h.Size))
	}
	frame := make([]byte, headerSize+int(h.Stored))
	copy(frame, buf)
	if _, err := io.ReadFull(r, frame[headerSize:]); err != nil {
		return h, nil, fmt.Errorf("%w: short payload: %w", ErrCorrupt, err)
	}
	return Open(frame)
}

func putHeader(b []byte, h Header) {
	copy(b[0:4], magic[:])
	b[4] = h.Version
	b[5] = byte(h.Kind)
	b[6] = byte(h.Compression)
	b[7] = 0
	binary.LittleEndian.PutUint32(b[8:12], h.Size)
	binary.LittleEndian.PutUint32(b[12:16], h.Stored)
	binary.LittleEndian.PutUint32(b[16:20], h.Checksum)
}

func parseHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	if [4]byte(b[0:4]) != magic {
		return Header{}, ErrBadMagic
	}
	h := Header{
		Version:     b[4],
		Kind:        Kind(b[5]),
		Compression: Compression(b[6]),
		Size:        binary.LittleEndian.Uint32(b[8:12]),
		Stored:      binary.LittleEndian.Uint32(b[12:16]),
		Checksum:    binary.LittleEndian.Uint32(b[16:20]),
	}
	if h.Version == 0 || h.Version > Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
