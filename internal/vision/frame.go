package vision

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
)

// ChannelOrder names the byte order of a pixel's three color channels.
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota
	OrderBGR
)

func (o ChannelOrder) String() string {
	if o == OrderBGR {
		return "BGR"
	}
	return "RGB"
}

// Frame is a packed 3-channel 8-bit image. Order is always explicit.
type Frame struct {
	Width  int
	Height int
	Order  ChannelOrder
	Pix    []uint8
}

func NewFrame(w, h int, order ChannelOrder) *Frame {
	return &Frame{Width: w, Height: h, Order: order, Pix: make([]uint8, w*h*3)}
}

// FrameFromImage copies any image into an RGB frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy(), OrderRGB)

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[(y)*rgba.Stride:]
			dst := f.Pix[y*f.Width*3:]
			for x := 0; x < f.Width; x++ {
				dst[x*3] = src[x*4]
				dst[x*3+1] = src[x*4+1]
				dst[x*3+2] = src[x*4+2]
			}
		}
		return f
	}

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return f
}

// DecodeFrame decodes JPEG, PNG, BMP or WebP bytes.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FrameFromImage(img), nil
}

// DecodeBase64 accepts raw base64 or a data URL ("data:image/png;base64,...")
// and returns the payload bytes.
func DecodeBase64(s string) ([]byte, error) {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some browsers strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrDecode, err)
		}
	}
	return data, nil
}

// DecodeBase64Frame decodes a base64 or data URL image.
func DecodeBase64Frame(s string) (*Frame, error) {
	data, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	return DecodeFrame(data)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]uint8(nil), f.Pix...)
	return &c
}

// SwapChannels reverses the channel order of every pixel.
func (f *Frame) SwapChannels() *Frame {
	out := f.Clone()
	for i := 0; i+2 < len(out.Pix); i += 3 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	if f.Order == OrderRGB {
		out.Order = OrderBGR
	} else {
		out.Order = OrderRGB
	}
	return out
}

// Convert returns the frame in the requested channel order.
func (f *Frame) Convert(order ChannelOrder) *Frame {
	if f.Order == order {
		return f.Clone()
	}
	return f.SwapChannels()
}

// Crop copies the clamped box out of the frame.
func (f *Frame) Crop(b BoundingBox) *Frame {
	b = ClampBox(b, f.Width, f.Height)
	out := NewFrame(b.Width, b.Height, f.Order)
	for y := 0; y < b.Height; y++ {
		src := ((b.Y+y)*f.Width + b.X) * 3
		copy(out.Pix[y*b.Width*3:(y+1)*b.Width*3], f.Pix[src:src+b.Width*3])
	}
	return out
}

// Resize scales the frame with bilinear interpolation.
func (f *Frame) Resize(w, h int) *Frame {
	if f.Width == w && f.Height == h {
		return f.Clone()
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if f.Width > 0 && f.Height > 0 {
		src := f.rgba()
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}
	return fromRGBA(dst, f.Order)
}

// Rotate turns the whole frame by angle degrees about (cx, cy) using the
// OpenCV rotation matrix convention and cubic resampling. Output keeps the
// input dimensions; uncovered pixels are black.
func (f *Frame) Rotate(cx, cy, angle float64) *Frame {
	rad := angle * math.Pi / 180
	a := math.Cos(rad)
	b := math.Sin(rad)

	// Source to destination affine, as produced by getRotationMatrix2D.
	m := f64.Aff3{
		a, b, (1-a)*cx - b*cy,
		-b, a, b*cx + (1-a)*cy,
	}

	src := f.rgba()
	dst := image.NewRGBA(src.Bounds())
	draw.CatmullRom.Transform(dst, m, src, src.Bounds(), draw.Src, nil)
	return fromRGBA(dst, f.Order)
}

// Image returns an RGB view suitable for encoding.
func (f *Frame) Image() *image.RGBA {
	return f.Convert(OrderRGB).rgba()
}

// EncodeJPEG encodes the frame as JPEG with the given quality.
func (f *Frame) EncodeJPEG(quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// rgba packs channels verbatim into an RGBA image. Interpolation is per
// channel so the stored order survives the round trip.
func (f *Frame) rgba() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i+2 < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img
}

func fromRGBA(img *image.RGBA, order ChannelOrder) *Frame {
	b := img.Bounds()
	out := NewFrame(b.Dx(), b.Dy(), order)
	for y := 0; y < out.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < out.Width; x++ {
			o := (y*out.Width + x) * 3
			out.Pix[o] = row[x*4]
			out.Pix[o+1] = row[x*4+1]
			out.Pix[o+2] = row[x*4+2]
		}
	}
	return out
}
