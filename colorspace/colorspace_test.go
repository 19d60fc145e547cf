package colorspace

import (
	"image"
	"image/color"
	"testing"

	"github.com/hupe1980/vqcodec/channel"
	"github.com/hupe1980/vqcodec/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"direct", KindDirect},
		{"RGB", KindDirect},
		{"luma-chroma", KindLumaChroma},
		{" yuv ", KindLumaChroma},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, err := ParseKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k)
		})
	}

	_, err := ParseKind("cmyk")
	assert.ErrorIs(t, err, ErrUnknownKind)

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("luma-chroma")))
	assert.Equal(t, KindLumaChroma, k)
	text, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "luma-chroma", string(text))

	_, err = New(Kind(9))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestIdentity_RoundTripExact(t *testing.T) {
	img := testutil.NewRNG(1).Noise(5, 3)
	tr, err := New(KindDirect)
	require.NoError(t, err)

	planes, err := tr.Forward(img)
	require.NoError(t, err)
	require.Len(t, planes, 3)
	for role, p := range planes {
		w, h := tr.PlaneSize(role, 5, 3)
		assert.Equal(t, w, p.Width)
		assert.Equal(t, h, p.Height)
	}

	out, err := tr.Inverse(planes, 5, 3)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestIdentity_ShortPlanesLeaveBlack(t *testing.T) {
	planes := []*channel.Channel{channel.MustNew(2, 2), channel.MustNew(2, 2), channel.MustNew(2, 2)}
	for _, p := range planes {
		p.Fill(200)
	}
	out, err := Identity{}.Inverse(planes, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, out.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(2, 2))

	_, err = Identity{}.Inverse(planes[:2], 3, 3)
	assert.ErrorIs(t, err, ErrPlaneCount)
}

func TestLumaChroma_PlaneSizes(t *testing.T) {
	tr := LumaChroma{}
	planes, err := tr.Forward(testutil.Gradient(7, 5))
	require.NoError(t, err)

	assert.Equal(t, 8, planes[0].Width)
	assert.Equal(t, 6, planes[0].Height)
	for _, p := range planes[1:] {
		assert.Equal(t, 4, p.Width)
		assert.Equal(t, 3, p.Height)
	}

	out, err := tr.Inverse(planes, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 5), out.Bounds())
}

func TestLumaChroma_SolidColorRoundTrip(t *testing.T) {
	colors := []color.RGBA{
		{0, 0, 0, 255},
		{255, 255, 255, 255},
		{200, 100, 50, 255},
		{12, 240, 99, 255},
		{128, 128, 128, 255},
	}
	tr := LumaChroma{}
	for _, c := range colors {
		img := testutil.Solid(5, 3, c)
		planes, err := tr.Forward(img)
		require.NoError(t, err)

		out, err := tr.Inverse(planes, 5, 3)
		require.NoError(t, err)
		for y := 0; y < 3; y++ {
			for x := 0; x < 5; x++ {
				got := out.RGBAAt(x, y)
				assert.LessOrEqual(t, absDiff(got.R, c.R), 1, "%v at (%d,%d)", c, x, y)
				assert.LessOrEqual(t, absDiff(got.G, c.G), 1, "%v at (%d,%d)", c, x, y)
				assert.LessOrEqual(t, absDiff(got.B, c.B), 1, "%v at (%d,%d)", c, x, y)
			}
		}
	}
}

func TestLumaChroma_ChromaFromTopLeft(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	img := testutil.Checkerboard(2, 2, 1, red, blue)

	planes, err := LumaChroma{}.Forward(img)
	require.NoError(t, err)
	assert.InDelta(t, 0.615*255+128, planes[2].At(0, 0), 1e-3)
	assert.InDelta(t, 0.299*255, planes[0].At(0, 0), 1e-3)
	assert.InDelta(t, 0.114*255, planes[0].At(1, 0), 1e-3)
}

func TestForward_NilImage(t *testing.T) {
	_, err := Identity{}.Forward(nil)
	assert.ErrorIs(t, err, ErrNilImage)
	_, err = LumaChroma{}.Forward(nil)
	assert.ErrorIs(t, err, ErrNilImage)
}
