// Package colorspace converts images into the channel planes a pipeline
// compresses, and back.
//
// Two transforms exist. Identity splits an image into its R, G and B planes at
// full resolution. LumaChroma converts to Y, U and V, keeping Y at full
// resolution and subsampling U and V to half resolution in both directions.
package colorspace

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/hupe1980/vqcodec/channel"
)

var (
	// ErrUnknownKind is returned by ParseKind and New.
	ErrUnknownKind = errors.New("unknown color transform")

	// ErrNilImage is returned by Forward for a nil image.
	ErrNilImage = errors.New("nil image")

	// ErrPlaneCount is returned by Inverse when the plane set does not match
	// the transform's roles.
	ErrPlaneCount = errors.New("wrong number of planes")
)

// Kind names a color transform.
type Kind int

const (
	// KindDirect compresses R, G and B independently.
	KindDirect Kind = iota
	// KindLumaChroma compresses Y at full and U, V at half resolution.
	KindLumaChroma
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindLumaChroma:
		return "luma-chroma"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses the textual form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "rgb":
		return KindDirect, nil
	case "luma-chroma", "yuv":
		return KindLumaChroma, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindDirect && k != KindLumaChroma {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Transform maps an image to an ordered set of planes and back.
type Transform interface {
	// Kind identifies the transform.
	Kind() Kind
	// Roles names the planes in the order Forward returns them.
	Roles() []string
	// Forward splits img into planes.
	Forward(img image.Image) ([]*channel.Channel, error)
	// PlaneSize returns the dimensions Forward produces for the given role
	// of a w x h image.
	PlaneSize(role, w, h int) (pw, ph int)
	// Inverse rebuilds a w x h image from planes.
	Inverse(planes []*channel.Channel, w, h int) (*image.RGBA, error)
}

// New returns the transform for kind.
func New(kind Kind) (Transform, error) {
	switch kind {
	case KindDirect:
		return Identity{}, nil
	case KindLumaChroma:
		return LumaChroma{}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
}

// Identity is the direct RGB transform.
type Identity struct{}

var _ Transform = Identity{}

func (Identity) Kind() Kind { return KindDirect }

func (Identity) Roles() []string { return []string{"R", "G", "B"} }

func (Identity) PlaneSize(_, w, h int) (int, int) { return w, h }

func (Identity) Forward(img image.Image) ([]*channel.Channel, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	planes := make([]*channel.Channel, 3)
	for i, comp := range []channel.Component{channel.Red, channel.Green, channel.Blue} {
		ch, err := channel.FromImage(img, comp)
		if err != nil {
			return nil, err
		}
		planes[i] = ch
	}
	return planes, nil
}

// Inverse rounds and clamps each plane into an opaque image. Pixels outside
// a plane (trailing rows or columns a truncating encoder dropped) are black.
func (Identity) Inverse(planes []*channel.Channel, w, h int) (*image.RGBA, error) {
	if len(planes) != 3 {
		return nil, fmt.Errorf("%w: got %d, want 3", ErrPlaneCount, len(planes))
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px [3]uint8
			for i, p := range planes {
				if p.In(x, y) {
					px[i] = channel.Sample8(p.At(x, y))
				}
			}
			img.SetRGBA(x, y, color.RGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
		}
	}
	return img, nil
}

// LumaChroma is the YUV 4:2:0 transform.
type LumaChroma struct{}

var _ Transform = LumaChroma{}

func (LumaChroma) Kind() Kind { return KindLumaChroma }

func (LumaChroma) Roles() []string { return []string{"Y", "U", "V"} }

// PlaneSize returns the padded even size for Y and half of it for U and V.
func (LumaChroma) PlaneSize(role, w, h int) (int, int) {
	pw, ph := w+w%2, h+h%2
	if role == 0 {
		return pw, ph
	}
	return pw / 2, ph / 2
}

// Forward replicates the last row and column of odd-sized images before
// converting, so every chroma sample has a full 2x2 luma neighbourhood.
// Chroma is taken from the top-left pixel of each 2x2 cell.
func (t LumaChroma) Forward(img image.Image) ([]*channel.Channel, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pw, ph := t.PlaneSize(0, w, h)
	cw, chh := t.PlaneSize(1, w, h)

	yp := channel.MustNew(pw, ph)
	up := channel.MustNew(cw, chh)
	vp := channel.MustNew(cw, chh)
	if w == 0 || h == 0 {
		return []*channel.Channel{yp, up, vp}, nil
	}

	for y := 0; y < ph; y++ {
		sy := min(y, h-1)
		for x := 0; x < pw; x++ {
			sx := min(x, w-1)
			r8, g8, b8 := channel.RGB8(img, b.Min.X+sx, b.Min.Y+sy)
			r, g, bl := float64(r8), float64(g8), float64(b8)

			yp.Set(x, y, float32(0.299*r+0.587*g+0.114*bl))
			if x%2 == 0 && y%2 == 0 {
				up.Set(x/2, y/2, float32(-0.14713*r-0.28886*g+0.436*bl+128))
				vp.Set(x/2, y/2, float32(0.615*r-0.51499*g-0.10001*bl+128))
			}
		}
	}
	return []*channel.Channel{yp, up, vp}, nil
}

// Inverse upsamples U and V by nearest neighbour and converts back to RGB,
// cropping to w x h. Plane coordinates are clamped, so planes that are
// slightly smaller than expected still produce a full image.
func (LumaChroma) Inverse(planes []*channel.Channel, w, h int) (*image.RGBA, error) {
	if len(planes) != 3 {
		return nil, fmt.Errorf("%w: got %d, want 3", ErrPlaneCount, len(planes))
	}
	yp, up, vp := planes[0], planes[1], planes[2]
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if yp.Empty() || up.Empty() || vp.Empty() {
		return img, nil
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lum := float64(yp.At(min(x, yp.Width-1), min(y, yp.Height-1)))
			u := float64(up.At(min(x/2, up.Width-1), min(y/2, up.Height-1))) - 128
			v := float64(vp.At(min(x/2, vp.Width-1), min(y/2, vp.Height-1))) - 128

			img.SetRGBA(x, y, color.RGBA{
				R: channel.Sample8(float32(lum + 1.13983*v)),
				G: channel.Sample8(float32(lum - 0.39465*u - 0.58060*v)),
				B: channel.Sample8(float32(lum + 2.03211*u)),
				A: 0xff,
			})
		}
	}
	return img, nil
}
