package container

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/hupe1980/vqcodec"
	"github.com/hupe1980/vqcodec/block"
	"github.com/hupe1980/vqcodec/colorspace"
	"github.com/hupe1980/vqcodec/testutil"
	"github.com/hupe1980/vqcodec/vq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedSet(t *testing.T, kind colorspace.Kind) (*vqcodec.Codec, *vqcodec.CodebookSet, image.Image) {
	t.Helper()
	img := testutil.NewRNG(4).Noise(12, 10)
	c, err := vqcodec.New(vqcodec.WithPipeline(kind), vqcodec.WithCodebookSize(16))
	require.NoError(t, err)
	set, err := c.Train(context.Background(), []image.Image{img})
	require.NoError(t, err)
	return c, set, img
}

func TestFrame(t *testing.T) {
	payload := bytes.Repeat([]byte("vector quantization "), 200)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			frame, err := Seal(KindCompressed, payload, c)
			require.NoError(t, err)
			if c != CompressionNone {
				assert.Less(t, len(frame), len(payload)/2)
			}

			h, got, err := Open(frame)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			assert.Equal(t, KindCompressed, h.Kind)
			assert.Equal(t, c, h.Compression)

			var buf bytes.Buffer
			_, err = Write(&buf, KindCodebookSet, payload, c)
			require.NoError(t, err)
			h, got, err = Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, KindCodebookSet, h.Kind)
			assert.Equal(t, payload, got)
		})
	}
}

func TestFrame_IncompressibleStoredRaw(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i * 97)
	}
	frame, err := Seal(KindCompressed, payload, CompressionLZ4)
	require.NoError(t, err)
	h, got, err := Open(frame)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, h.Compression)
	assert.Equal(t, payload, got)
}

func TestSeal_ChecksumIsCRC32C(t *testing.T) {
	frame, err := Seal(KindCompressed, []byte("123456789"), CompressionNone)
	require.NoError(t, err)
	h, _, err := Open(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xE3069283), h.Checksum, "CRC-32C check value")
}

func TestFrame_Errors(t *testing.T) {
	frame, err := Seal(KindCompressed, []byte("payload"), CompressionNone)
	require.NoError(t, err)

	_, _, err = Open(frame[:10])
	assert.ErrorIs(t, err, ErrCorrupt)

	bad := bytes.Clone(frame)
	bad[0] = 'X'
	_, _, err = Open(bad)
	assert.ErrorIs(t, err, ErrBadMagic)

	bad = bytes.Clone(frame)
	bad[4] = Version + 1
	_, _, err = Open(bad)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	bad = bytes.Clone(frame)
	bad[len(bad)-1] ^= 0xff
	_, _, err = Open(bad)
	assert.ErrorIs(t, err, ErrChecksum)

	_, _, err = Open(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Seal(KindCompressed, []byte("x"), Compression(9))
	assert.ErrorIs(t, err, ErrUnknownCompression)

	_, _, err = Read(bytes.NewReader(frame[:len(frame)-2]))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestCodebookSet_RoundTrip(t *testing.T) {
	for _, kind := range []colorspace.Kind{colorspace.KindDirect, colorspace.KindLumaChroma} {
		t.Run(kind.String(), func(t *testing.T) {
			_, set, _ := trainedSet(t, kind)

			data, err := EncodeCodebookSet(set, CompressionZSTD)
			require.NoError(t, err)

			got, err := DecodeCodebookSet(data)
			require.NoError(t, err)
			assert.Equal(t, set.ID, got.ID)
			assert.Equal(t, set.Pipeline, got.Pipeline)
			assert.Equal(t, set.Block, got.Block)
			assert.Equal(t, set.Roles, got.Roles)
			for i := range set.Codebooks {
				assert.True(t, set.Codebooks[i].Equal(got.Codebooks[i]))
			}

			_, err = DecodeCompressed(data)
			assert.ErrorIs(t, err, ErrKindMismatch)
		})
	}
}

func TestCodebookSet_TamperedID(t *testing.T) {
	_, set, _ := trainedSet(t, colorspace.KindDirect)
	forged := *set
	forged.ID = "00000000-0000-0000-0000-000000000000"

	data, err := EncodeCodebookSet(&forged, CompressionNone)
	require.NoError(t, err)
	_, err = DecodeCodebookSet(data)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestCompressed_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, set, img := trainedSet(t, colorspace.KindLumaChroma)

	comp, err := c.Compress(ctx, set, img)
	require.NoError(t, err)

	data, err := EncodeCompressed(comp, CompressionLZ4)
	require.NoError(t, err)

	got, err := DecodeCompressed(data)
	require.NoError(t, err)
	assert.Equal(t, comp.CodebookID, got.CodebookID)
	assert.Equal(t, comp.Pipeline, got.Pipeline)
	assert.Equal(t, comp.Width, got.Width)
	assert.Equal(t, comp.Height, got.Height)
	require.Len(t, got.Grids, len(comp.Grids))
	for i := range comp.Grids {
		assert.True(t, comp.Grids[i].Equal(got.Grids[i]))
	}

	want, err := c.Decompress(ctx, set, comp)
	require.NoError(t, err)
	out, err := c.Decompress(ctx, set, got)
	require.NoError(t, err)
	assert.Equal(t, want.Pix, out.Pix)
}

func TestCompressed_IndexWidths(t *testing.T) {
	tests := []struct {
		name  string
		idx   []int32
		width uint8
	}{
		{"Byte", []int32{0, 17, 255}, 1},
		{"Short", []int32{0, 300, 65535}, 2},
		{"Word", []int32{0, 70000, 1}, 4},
		{"Negative", []int32{-1, 2, 3}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &vq.IndexGrid{Rows: 1, Cols: 3, Indices: tt.idx}
			assert.Equal(t, tt.width, indexWidth(g))

			comp := &vqcodec.Compressed{Width: 6, Height: 2, Block: vqcodec.DefaultConfig().Block, Grids: []*vq.IndexGrid{g}}
			data, err := EncodeCompressed(comp, CompressionNone)
			require.NoError(t, err)
			got, err := DecodeCompressed(data)
			require.NoError(t, err)
			assert.Equal(t, tt.idx, got.Grids[0].Indices)
		})
	}
}

func TestDecodeCompressed_RejectsUncoveredDimensions(t *testing.T) {
	tall := func() []*vq.IndexGrid {
		return []*vq.IndexGrid{vq.NewIndexGrid(1<<23, 0), vq.NewIndexGrid(1<<23, 0), vq.NewIndexGrid(1<<23, 0)}
	}
	tests := []struct {
		name string
		comp *vqcodec.Compressed
	}{
		{"EmptyGridsTallImage", &vqcodec.Compressed{Width: 1, Height: 1 << 24, Block: block.DefaultGeometry, Grids: tall()}},
		{"OversizedFrame", &vqcodec.Compressed{Width: 4000, Height: 4000, Block: block.DefaultGeometry, Grids: []*vq.IndexGrid{
			vq.NewIndexGrid(1, 1), vq.NewIndexGrid(1, 1), vq.NewIndexGrid(1, 1),
		}}},
		{"ExtraGrid", &vqcodec.Compressed{Width: 2, Height: 2, Block: block.DefaultGeometry, Grids: []*vq.IndexGrid{
			vq.NewIndexGrid(1, 1), vq.NewIndexGrid(1, 1), vq.NewIndexGrid(1, 1), vq.NewIndexGrid(1, 1),
		}}},
		{"ChromaGridTooLarge", &vqcodec.Compressed{Width: 4, Height: 4, Pipeline: colorspace.KindLumaChroma, Block: block.DefaultGeometry, Grids: []*vq.IndexGrid{
			vq.NewIndexGrid(2, 2), vq.NewIndexGrid(2, 2), vq.NewIndexGrid(1, 1),
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeCompressed(tt.comp, CompressionNone)
			require.NoError(t, err)
			_, err = DecodeCompressed(data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}

	comp := &vqcodec.Compressed{Width: 5, Height: 3, Pipeline: colorspace.KindLumaChroma, Block: block.DefaultGeometry, Grids: []*vq.IndexGrid{
		vq.NewIndexGrid(2, 3), vq.NewIndexGrid(1, 2), vq.NewIndexGrid(1, 1),
	}}
	data, err := EncodeCompressed(comp, CompressionNone)
	require.NoError(t, err)
	_, err = DecodeCompressed(data)
	assert.NoError(t, err, "floor and ceiling tilings of odd chroma planes decode")
}

func TestEncode_Errors(t *testing.T) {
	_, err := EncodeCompressed(nil, CompressionNone)
	assert.ErrorIs(t, err, vqcodec.ErrMissingInput)

	_, err = EncodeCodebookSet(&vqcodec.CodebookSet{}, CompressionNone)
	assert.ErrorIs(t, err, vqcodec.ErrCodebookMismatch)

	frame, err := Seal(KindCompressed, []byte{1, 2, 3}, CompressionNone)
	require.NoError(t, err)
	_, err = DecodeCompressed(frame)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCompressed_SolidImageCompressesWell(t *testing.T) {
	ctx := context.Background()
	img := testutil.Solid(64, 64, color.RGBA{90, 90, 90, 255})
	c, err := vqcodec.New(vqcodec.WithCodebookSize(4))
	require.NoError(t, err)
	set, err := c.Train(ctx, []image.Image{img})
	require.NoError(t, err)
	comp, err := c.Compress(ctx, set, img)
	require.NoError(t, err)

	raw, err := EncodeCompressed(comp, CompressionNone)
	require.NoError(t, err)
	packed, err := EncodeCompressed(comp, CompressionZSTD)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(raw)/4)
}

func TestEncode_FieldOverflow(t *testing.T) {
	g := &vq.IndexGrid{Rows: 1, Cols: 1, Indices: []int32{0}}
	comp := &vqcodec.Compressed{
		Width:  1,
		Height: 1,
		Block:  block.Geometry{Width: 70000, Height: 2},
		Grids:  []*vq.IndexGrid{g},
	}
	_, err := EncodeCompressed(comp, CompressionNone)
	assert.ErrorIs(t, err, ErrFieldOverflow)

	comp.Block = vqcodec.DefaultConfig().Block
	comp.Width = -1
	_, err = EncodeCompressed(comp, CompressionNone)
	assert.ErrorIs(t, err, ErrFieldOverflow)
}
