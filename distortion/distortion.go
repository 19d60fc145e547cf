// Package distortion measures reconstruction error between images.
package distortion

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/hupe1980/vqcodec/channel"
	"gonum.org/v1/gonum/stat"
)

// ErrNilImage is returned when either operand is nil.
var ErrNilImage = errors.New("nil image")

// DimensionMismatchError reports operands of different sizes.
type DimensionMismatchError struct {
	Expected image.Point
	Actual   image.Point
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %dx%d, got %dx%d",
		e.Expected.X, e.Expected.Y, e.Actual.X, e.Actual.Y)
}

// MSE returns the mean squared error over the R, G and B components of two
// equally sized images: the summed squared 8-bit differences divided by
// w*h*3. Alpha is ignored. Empty images have an error of 0.
func MSE(a, b image.Image) (float64, error) {
	if a == nil || b == nil {
		return 0, ErrNilImage
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Size() != bb.Size() {
		return 0, &DimensionMismatchError{Expected: ab.Size(), Actual: bb.Size()}
	}
	w, h := ab.Dx(), ab.Dy()
	if w == 0 || h == 0 {
		return 0, nil
	}

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ar, ag, abl := channel.RGB8(a, ab.Min.X+x, ab.Min.Y+y)
			br, bg, bbl := channel.RGB8(b, bb.Min.X+x, bb.Min.Y+y)
			sum += sq(ar, br) + sq(ag, bg) + sq(abl, bbl)
		}
	}
	return sum / float64(w*h*3), nil
}

// ChannelMSE returns the mean squared error between two equally sized
// channels.
func ChannelMSE(a, b *channel.Channel) (float64, error) {
	if a == nil || b == nil {
		return 0, ErrNilImage
	}
	if a.Width != b.Width || a.Height != b.Height {
		return 0, &DimensionMismatchError{
			Expected: image.Pt(a.Width, a.Height),
			Actual:   image.Pt(b.Width, b.Height),
		}
	}
	if len(a.Pix) == 0 {
		return 0, nil
	}
	var sum float64
	for i, v := range a.Pix {
		d := float64(v) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix)), nil
}

// PSNR converts an 8-bit MSE into peak signal-to-noise ratio in dB.
// A perfect reconstruction yields +Inf.
func PSNR(mse float64) float64 {
	if mse <= 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(255*255/mse)
}

func sq(a, b uint8) float64 {
	d := float64(a) - float64(b)
	return d * d
}

// Entry is the distortion of one image.
type Entry struct {
	Name string  `json:"name"`
	MSE  float64 `json:"mse"`
	PSNR float64 `json:"psnr"`
}

// Report collects per-image distortion. It is safe for concurrent use.
type Report struct {
	mu      sync.Mutex
	entries []Entry
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

// Add records the error of one image.
func (r *Report) Add(name string, mse float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Name: name, MSE: mse, PSNR: PSNR(mse)})
}

// Entries returns a copy of the recorded entries in insertion order.
func (r *Report) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of recorded images.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Mean returns the average MSE, or 0 for an empty report.
func (r *Report) Mean() float64 {
	m, _ := r.MeanStdDev()
	return m
}

// StdDev returns the sample standard deviation of the MSE values.
func (r *Report) StdDev() float64 {
	_, s := r.MeanStdDev()
	return s
}

// MeanStdDev returns mean and sample standard deviation of the MSE values.
// The deviation is 0 for fewer than two entries.
func (r *Report) MeanStdDev() (mean, std float64) {
	values := r.values()
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

func (r *Report) values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.MSE
	}
	return out
}

// Average returns the arithmetic mean of errs, or 0 when errs is empty.
func Average(errs []float64) float64 {
	if len(errs) == 0 {
		return 0
	}
	return stat.Mean(errs, nil)
}
