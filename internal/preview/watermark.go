package preview

import (
	crand "crypto/rand"
	"encoding/binary"
	"image"
	"image/color"
	"math/rand/v2"
	"strings"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// stegoHeaderBits holds the payload length in bytes, big endian.
const stegoHeaderBits = 32

// newRand returns a ChaCha8 generator seeded from crypto/rand.
func newRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("preview: reading random seed: " + err.Error())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// addNoise moves the red and green channels of every pixel by a random
// amount in [-amplitude, amplitude]. Blue carries the hidden watermark and
// is left alone.
func addNoise(img *image.NRGBA, amplitude int, rng *rand.Rand) {
	if amplitude <= 0 {
		return
	}
	span := 2*amplitude + 1
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i] = clampByte(int(img.Pix[i]) + rng.IntN(span) - amplitude)
		img.Pix[i+1] = clampByte(int(img.Pix[i+1]) + rng.IntN(span) - amplitude)
	}
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

// drawVisibleWatermark tiles text across img in staggered rows.
func drawVisibleWatermark(img *image.NRGBA, text string, opacity float64) {
	alpha := uint8(opacity * 255)
	if alpha == 0 || text == "" {
		return
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 128, G: 128, B: 128, A: alpha}),
		Face: face,
	}

	b := img.Bounds()
	textW := d.MeasureString(text).Ceil()
	stepX := textW + 48
	stepY := face.Height * 5

	for row, y := 0, b.Min.Y+face.Ascent; y < b.Max.Y+face.Height; row, y = row+1, y+stepY {
		offset := 0
		if row%2 == 1 {
			offset = stepX / 2
		}
		for x := b.Min.X - offset; x < b.Max.X; x += stepX {
			d.Dot = fixed.P(x, y)
			d.DrawString(text)
		}
	}
}

// embedWatermark writes payload into the least significant bit of the blue
// channel, one bit per pixel in raster order, after a 32 bit length header.
// Payloads longer than the image can hold are truncated; images too small
// for the header are left untouched.
func embedWatermark(img *image.NRGBA, payload []byte) {
	capacity := len(img.Pix)/4 - stegoHeaderBits
	if capacity < 8 {
		return
	}
	if len(payload)*8 > capacity {
		payload = payload[:capacity/8]
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	bit := 0
	write := func(b byte) {
		for i := 7; i >= 0; i-- {
			blue := 4*bit + 2
			img.Pix[blue] = img.Pix[blue]&^1 | (b>>i)&1
			bit++
		}
	}
	for _, b := range header {
		write(b)
	}
	for _, b := range payload {
		write(b)
	}
}

// ExtractWatermark recovers the provenance string hidden in a rendered
// preview, or in a lossless capture of one at its original size.
func ExtractWatermark(img image.Image) (string, error) {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total < stegoHeaderBits+8 {
		return "", kerrors.ErrNoWatermark
	}

	bit := 0
	read := func() byte {
		var out byte
		for i := 0; i < 8; i++ {
			x := b.Min.X + bit%b.Dx()
			y := b.Min.Y + bit/b.Dx()
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = out<<1 | c.B&1
			bit++
		}
		return out
	}

	var header [4]byte
	for i := range header {
		header[i] = read()
	}
	n := int(binary.BigEndian.Uint32(header[:]))
	if n == 0 || n*8 > total-stegoHeaderBits {
		return "", kerrors.ErrNoWatermark
	}

	payload := make([]byte, n)
	for i := range payload {
		payload[i] = read()
	}
	if !strings.HasPrefix(string(payload), provenancePrefix) {
		return "", kerrors.ErrNoWatermark
	}
	return string(payload), nil
}

// DecodeWatermark decodes an image file and extracts its watermark.
func DecodeWatermark(data []byte) (string, error) {
	img, _, err := decode(data)
	if err != nil {
		return "", err
	}
	return ExtractWatermark(img)
}
