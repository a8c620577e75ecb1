// Package imaging - Tensor-zu-Bild Konvertierung
//
// Dieses Modul enthaelt:
// - ToRGBA: NCHW-Tensor [-1,1] nach image.RGBA
// - EncodePNG: Sample-Auswahl plus PNG-Encoding
// - Resize: Skalierung fuer die Ausgabe via Catmull-Rom
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/vlabs/artemis/diffusion"
)

// ToRGBA converts one sample of an NCHW float tensor into an RGBA image.
// Values are mapped from [-1, 1] to [0, 255] and clamped; a single-channel
// tensor is expanded to grayscale RGB.
func ToRGBA(x *diffusion.Image, sample int) (*image.RGBA, error) {
	shape := x.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: expected NCHW tensor, got shape %v", diffusion.ErrInvalidConfiguration, shape)
	}
	batch, ch, h, w := shape[0], shape[1], shape[2], shape[3]
	if sample < 0 || sample >= batch {
		return nil, fmt.Errorf("%w: sample %d outside batch of %d", diffusion.ErrInvalidConfiguration, sample, batch)
	}
	if ch != 1 && ch != 3 {
		return nil, fmt.Errorf("%w: cannot render %d-channel tensor", diffusion.ErrInvalidConfiguration, ch)
	}

	data := x.Float32s()[sample*ch*h*w:]
	spatial := h * w

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for xx := range w {
			i := y*w + xx
			var r, g, b uint8
			if ch == 1 {
				v := quantize(data[i])
				r, g, b = v, v, v
			} else {
				r = quantize(data[i])
				g = quantize(data[spatial+i])
				b = quantize(data[2*spatial+i])
			}
			o := img.PixOffset(xx, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xff
		}
	}
	return img, nil
}

// quantize maps [-1, 1] to a byte, clamping out-of-range values.
func quantize(v float32) uint8 {
	s := (v + 1) * 127.5
	if s < 0 {
		s = 0
	} else if s > 255 {
		s = 255
	}
	return uint8(s + 0.5)
}

// Resize scales an image to size x size using Catmull-Rom interpolation.
// The source is returned unchanged when it already has the target size.
func Resize(img *image.RGBA, size int) *image.RGBA {
	if b := img.Bounds(); b.Dx() == size && b.Dy() == size {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// EncodePNG renders one sample as PNG bytes, optionally resized. A size of
// zero keeps the tensor's native resolution.
func EncodePNG(x *diffusion.Image, sample, size int) ([]byte, error) {
	img, err := ToRGBA(x, sample)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		img = Resize(img, size)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
