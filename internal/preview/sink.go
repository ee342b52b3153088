package preview

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"

	xdraw "golang.org/x/image/draw"
)

// Sink is where a surface is displayed.
type Sink interface {
	Show(img image.Image) error
}

// TerminalSink draws images with 24-bit color half blocks: each character
// cell shows two vertically stacked pixels.
type TerminalSink struct {
	Out io.Writer

	// Columns and Rows bound the output in character cells. Zero means
	// unbounded.
	Columns int
	Rows    int
}

func (t *TerminalSink) Show(img image.Image) error {
	img = t.fit(img)
	b := img.Bounds()

	w := bufio.NewWriter(t.Out)
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x++ {
			top := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			bottom := color.NRGBA{}
			if y+1 < b.Max.Y {
				bottom = color.NRGBAModel.Convert(img.At(x, y+1)).(color.NRGBA)
			}
			fmt.Fprintf(w, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B, bottom.R, bottom.G, bottom.B)
		}
		fmt.Fprint(w, "\x1b[0m\n")
	}
	return w.Flush()
}

// fit scales img down to the sink's cell budget.
func (t *TerminalSink) fit(img image.Image) image.Image {
	b := img.Bounds()
	maxW, maxH := b.Dx(), b.Dy()
	if t.Columns > 0 {
		maxW = t.Columns
	}
	if t.Rows > 0 {
		maxH = t.Rows * 2
	}
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return img
	}

	scale := min(float64(maxW)/float64(b.Dx()), float64(maxH)/float64(b.Dy()))
	nw := max(1, int(float64(b.Dx())*scale))
	nh := max(1, int(float64(b.Dy())*scale))
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}
