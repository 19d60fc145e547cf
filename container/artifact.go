package container

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/codebook"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/internal/conv"
	"github.com/hupe1980/vqcodec/vq"
)

// EncodeCodebookSet serializes set into a frame.
//
// Payload: id, pipeline, block geometry, then per role its name and the
// codebook's binary form.
func EncodeCodebookSet(set *vqcodec.CodebookSet, c Compression) ([]byte, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	var e encoder
	e.str(set.ID)
	e.u8(uint8(set.Pipeline))
	e.field16(set.Block.Width)
	e.field16(set.Block.Height)
	e.field8(len(set.Roles))
	for i, role := range set.Roles {
		data, err := set.Codebooks[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		e.str(role)
		e.bytes(data)
	}
	if e.err != nil {
		return nil, e.err
	}
	return Seal(KindCodebookSet, e.buf, c)
}

// DecodeCodebookSet parses a frame produced by EncodeCodebookSet. The set's
// ID is checked against its content.
func DecodeCodebookSet(data []byte) (*vqcodec.CodebookSet, error) {
	h, payload, err := Open(data)
	if err != nil {
		return nil, err
	}
	if h.Kind != KindCodebookSet {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, h.Kind, KindCodebookSet)
	}

	d := decoder{buf: payload}
	set := &vqcodec.CodebookSet{
		ID:       d.str(),
		Pipeline: colorspace.Kind(d.u8()),
		Block:    block.Geometry{Width: int(d.u16()), Height: int(d.u16())},
	}
	n := int(d.u8())
	for range n {
		role := d.str()
		raw := d.bytes()
		if d.err != nil {
			break
		}
		var cb codebook.Codebook
		if err := cb.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("%w: codebook %s: %w", ErrCorrupt, role, err)
		}
		set.Roles = append(set.Roles, role)
		set.Codebooks = append(set.Codebooks, &cb)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	id, err := set.Fingerprint()
	if err != nil {
		return nil, err
	}
	if set.ID != id {
		return nil, fmt.Errorf("%w: codebook set id %s does not match content %s", ErrChecksum, set.ID, id)
	}
	return set, nil
}

// EncodeCompressed serializes comp into a frame. Indices are packed into
// 1, 2 or 4 bytes, whichever holds every index of a grid.
func EncodeCompressed(comp *vqcodec.Compressed, c Compression) ([]byte, error) {
	if comp == nil {
		return nil, fmt.Errorf("%w: nil compressed image", vqcodec.ErrMissingInput)
	}
	var e encoder
	e.str(comp.CodebookID)
	e.u8(uint8(comp.Pipeline))
	e.field16(comp.Block.Width)
	e.field16(comp.Block.Height)
	e.field32(comp.Width)
	e.field32(comp.Height)
	e.field8(len(comp.Grids))
	for i, g := range comp.Grids {
		if g == nil {
			return nil, fmt.Errorf("%w: missing grid %d", vqcodec.ErrMissingInput, i)
		}
		e.grid(g)
	}
	if e.err != nil {
		return nil, e.err
	}
	return Seal(KindCompressed, e.buf, c)
}

// DecodeCompressed parses a frame produced by EncodeCompressed.
func DecodeCompressed(data []byte) (*vqcodec.Compressed, error) {
	h, payload, err := Open(data)
	if err != nil {
		return nil, err
	}
	if h.Kind != KindCompressed {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, h.Kind, KindCompressed)
	}

	d := decoder{buf: payload}
	comp := &vqcodec.Compressed{
		CodebookID: d.str(),
		Pipeline:   colorspace.Kind(d.u8()),
		Block:      block.Geometry{Width: int(d.u16()), Height: int(d.u16())},
		Width:      int(d.u32()),
		Height:     int(d.u32()),
	}
	n := int(d.u8())
	for range n {
		g := d.grid()
		if d.err != nil {
			break
		}
		comp.Grids = append(comp.Grids, g)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := checkCoverage(comp); err != nil {
		return nil, err
	}
	return comp, nil
}

// checkCoverage rejects frames whose dimensions their grids cannot tile, so
// a few bytes of header cannot ask Decompress for an arbitrarily large image.
func checkCoverage(comp *vqcodec.Compressed) error {
	if err := comp.Block.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	t, err := colorspace.New(comp.Pipeline)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	roles := t.Roles()
	for r, grid := range comp.Grids {
		if r >= len(roles) {
			return fmt.Errorf("%w: %d grids for %d planes", ErrCorrupt, len(comp.Grids), len(roles))
		}
		pw, ph := t.PlaneSize(r, comp.Width, comp.Height)
		if err := vq.CheckCoverage(grid, comp.Block, pw, ph); err != nil {
			return fmt.Errorf("%w: %s plane: %w", ErrCorrupt, roles[r], err)
		}
	}
	return nil
}

// indexWidth returns the bytes needed per index of g.
func indexWidth(g *vq.IndexGrid) uint8 {
	width := uint8(1)
	for _, v := range g.Indices {
		switch {
		case v < 0 || v > math.MaxUint16:
			return 4
		case v > math.MaxUint8:
			width = 2
		}
	}
	return width
}

// encoder appends fields to buf. The first field that does not fit its
// width sticks in err.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func field[T conv.Unsigned](e *encoder, v int) T {
	n, err := conv.ToUnsigned[T](v)
	if err != nil && e.err == nil {
		e.err = fmt.Errorf("%w: %w", ErrFieldOverflow, err)
	}
	return n
}

func (e *encoder) field8(v int)  { e.u8(field[uint8](e, v)) }
func (e *encoder) field16(v int) { e.u16(field[uint16](e, v)) }
func (e *encoder) field32(v int) { e.u32(field[uint32](e, v)) }

func (e *encoder) str(s string) {
	e.field16(len(s))
	e.buf = append(e.buf, s...)
}

func (e *encoder) bytes(b []byte) {
	e.field32(len(b))
	e.buf = append(e.buf, b...)
}

func (e *encoder) grid(g *vq.IndexGrid) {
	w := indexWidth(g)
	e.field32(g.Rows)
	e.field32(g.Cols)
	e.u8(w)
	for _, v := range g.Indices {
		switch w {
		case 1:
			e.u8(uint8(v))
		case 2:
			e.u16(uint16(v))
		default:
			e.u32(uint32(v))
		}
	}
}

// decoder reads the payload sequentially. The first failure sticks; later
// reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: payload truncated at offset %d", ErrCorrupt, d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) str() string {
	return string(d.take(int(d.u16())))
}

func (d *decoder) bytes() []byte {
	return d.take(int(d.u32()))
}

func (d *decoder) grid() *vq.IndexGrid {
	rows, cols := int(d.u32()), int(d.u32())
	w := int(d.u8())
	if d.err != nil {
		return nil
	}
	if w != 1 && w != 2 && w != 4 {
		d.err = fmt.Errorf("%w: index width %d", ErrCorrupt, w)
		return nil
	}
	if rows < 0 || cols < 0 || (cols > 0 && rows > (len(d.buf)-d.off)/(cols*w)) {
		d.err = fmt.Errorf("%w: %dx%d grid exceeds payload", ErrCorrupt, rows, cols)
		return nil
	}
	raw := d.take(rows * cols * w)
	if raw == nil {
		return nil
	}
	g := vq.NewIndexGrid(rows, cols)
	for i := range g.Indices {
		switch w {
		case 1:
			g.Indices[i] = int32(raw[i])
		case 2:
			g.Indices[i] = int32(binary.LittleEndian.Uint16(raw[2*i:]))
		default:
			g.Indices[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	}
	return g
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf)-d.off)
	}
	return nil
}
