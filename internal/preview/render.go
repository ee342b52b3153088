package preview

import (
	"context"

	logger "github.com/PolarWolf314/docvault/internal/logging"

	"github.com/coder/quartz"
)

// Renderer turns decrypted image bytes into protected surfaces.
type Renderer struct {
	Options Options
	Clock   quartz.Clock
	Logger  logger.Logger
}

func NewRenderer(opts Options) *Renderer {
	return &Renderer{Options: opts, Clock: quartz.NewReal()}
}

// Render decodes data and prepares a surface for it:
//  1. Decode and clamp to the maximum display size
//  2. Perturb the red and green channels with random noise
//  3. Tile the visible provenance watermark
//  4. Hide the provenance string in the blue channel
//
// data is retained by the surface and wiped when the surface is cleaned up.
// It is never written anywhere.
func (r *Renderer) Render(ctx context.Context, data []byte, prov Provenance) (*Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := r.Options.withDefaults()
	clock := r.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}

	src, format, err := decode(data)
	if err != nil {
		return nil, err
	}
	frame := clamp(src, opts.MaxWidth, opts.MaxHeight)
	wipeImage(src)
	r.Logger.Debugf("Decoded %s preview, rendering at %dx%d", format, frame.Rect.Dx(), frame.Rect.Dy())

	if err := ctx.Err(); err != nil {
		clear(frame.Pix)
		return nil, err
	}

	rng := newRand()
	addNoise(frame, opts.NoiseAmplitude, rng)
	drawVisibleWatermark(frame, prov.label(), opts.WatermarkOpacity)
	embedWatermark(frame, []byte(prov.String()))

	s := newSurface(frame, data, prov, clock, rng, r.Logger)
	if opts.Duration > 0 {
		s.arm(opts.Duration)
	}
	return s, nil
}
