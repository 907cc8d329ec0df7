package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeBase64Frame(t *testing.T) {
	data := encodePNG(t, 4, 3, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	raw := base64.StdEncoding.EncodeToString(data)

	tests := []struct {
		name  string
		input string
	}{
		{name: "raw base64", input: raw},
		{name: "data url", input: "data:image/png;base64," + raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeBase64Frame(tt.input)
			if err != nil {
				t.Fatalf("DecodeBase64Frame: %v", err)
			}
			if f.Width != 4 || f.Height != 3 {
				t.Errorf("size = %dx%d, want 4x3", f.Width, f.Height)
			}
			if f.Order != OrderRGB {
				t.Errorf("order = %v, want RGB", f.Order)
			}
			if f.Pix[0] != 200 || f.Pix[1] != 100 || f.Pix[2] != 50 {
				t.Errorf("first pixel = %v, want [200 100 50]", f.Pix[:3])
			}
		})
	}
}

func TestDecodeBase64Frame_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"not base64 at all!!",
		base64.StdEncoding.EncodeToString([]byte("plain text is not an image")),
	}
	for _, in := range inputs {
		if _, err := DecodeBase64Frame(in); !errors.Is(err, ErrDecode) {
			t.Errorf("DecodeBase64Frame(%q) error = %v, want ErrDecode", in, err)
		}
	}
}

func TestFrame_SwapChannelsTracksOrder(t *testing.T) {
	f := solidFrame(2, 2, OrderRGB, 1, 2, 3)
	s := f.SwapChannels()

	if s.Order != OrderBGR {
		t.Errorf("order = %v, want BGR", s.Order)
	}
	if s.Pix[0] != 3 || s.Pix[2] != 1 {
		t.Errorf("pixel = %v, want [3 2 1]", s.Pix[:3])
	}
	if f.Pix[0] != 1 {
		t.Error("SwapChannels mutated its receiver")
	}

	back := s.SwapChannels()
	if back.Order != OrderRGB || !bytes.Equal(back.Pix, f.Pix) {
		t.Error("double swap should restore the original frame")
	}
}

func TestFrame_Convert(t *testing.T) {
	f := solidFrame(1, 1, OrderBGR, 10, 20, 30)

	same := f.Convert(OrderBGR)
	if !bytes.Equal(same.Pix, f.Pix) {
		t.Error("Convert to the current order must not change pixels")
	}

	rgb := f.Convert(OrderRGB)
	if rgb.Order != OrderRGB || rgb.Pix[0] != 30 || rgb.Pix[2] != 10 {
		t.Errorf("Convert(RGB) = %v %v", rgb.Order, rgb.Pix)
	}
}

func TestFrame_Crop(t *testing.T) {
	f := NewFrame(4, 4, OrderRGB)
	for i := range f.Pix {
		f.Pix[i] = uint8(i / 3)
	}

	c := f.Crop(BoundingBox{X: 1, Y: 2, Width: 2, Height: 2})
	if c.Width != 2 || c.Height != 2 {
		t.Fatalf("crop size = %dx%d", c.Width, c.Height)
	}
	// pixel index (row 2, col 1) = 9
	if c.Pix[0] != 9 {
		t.Errorf("first cropped pixel = %d, want 9", c.Pix[0])
	}
	// pixel index (row 3, col 2) = 14
	if c.Pix[len(c.Pix)-1] != 14 {
		t.Errorf("last cropped pixel = %d, want 14", c.Pix[len(c.Pix)-1])
	}

	empty := f.Crop(BoundingBox{X: 10, Y: 10, Width: 5, Height: 5})
	if empty.Width != 0 || empty.Height != 0 || len(empty.Pix) != 0 {
		t.Errorf("out-of-frame crop = %dx%d", empty.Width, empty.Height)
	}
}

func TestFrame_ResizeKeepsColorAndOrder(t *testing.T) {
	f := solidFrame(37, 53, OrderBGR, 40, 80, 120)
	r := f.Resize(FaceSize, FaceSize)

	if r.Width != FaceSize || r.Height != FaceSize {
		t.Fatalf("size = %dx%d", r.Width, r.Height)
	}
	if r.Order != OrderBGR {
		t.Errorf("order = %v, want BGR", r.Order)
	}
	mid := (FaceSize*FaceSize/2 + FaceSize/2) * 3
	if r.Pix[mid] != 40 || r.Pix[mid+1] != 80 || r.Pix[mid+2] != 120 {
		t.Errorf("center pixel = %v, want [40 80 120]", r.Pix[mid:mid+3])
	}
}

func TestFrame_RotateDirection(t *testing.T) {
	const size, cx, cy = 64, 32, 32
	f := NewFrame(size, size, OrderRGB)
	// 5x5 bright blob ten pixels right of the center.
	for y := cy - 2; y <= cy+2; y++ {
		for x := cx + 8; x <= cx+12; x++ {
			o := (y*size + x) * 3
			f.Pix[o], f.Pix[o+1], f.Pix[o+2] = 255, 255, 255
		}
	}

	r := f.Rotate(cx, cy, 90)
	if r.Width != size || r.Height != size {
		t.Fatalf("rotated size = %dx%d", r.Width, r.Height)
	}

	at := func(x, y int) uint8 { return r.Pix[(y*size+x)*3] }
	// A positive angle turns counter-clockwise on screen: right of center
	// moves above center.
	if v := at(cx, cy-10); v < 200 {
		t.Errorf("pixel above center = %d, want bright", v)
	}
	if v := at(cx+10, cy); v > 50 {
		t.Errorf("original blob position = %d, want dark", v)
	}
}

func TestFrame_EncodeJPEG(t *testing.T) {
	f := solidFrame(8, 8, OrderBGR, 0, 0, 255)
	data, err := f.EncodeJPEG(90)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	back, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	// BGR (0,0,255) is red.
	if back.Pix[0] < 200 || back.Pix[2] > 60 {
		t.Errorf("decoded pixel = %v, want red", back.Pix[:3])
	}
}
