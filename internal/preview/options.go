package preview

import (
	"fmt"
	"time"
)

const (
	DefaultMaxWidth         = 1600
	DefaultMaxHeight        = 1600
	DefaultNoiseAmplitude   = 2
	DefaultWatermarkOpacity = 0.12
	DefaultDuration         = 2 * time.Minute
)

// Options controls how a preview is rendered and how long it lives.
type Options struct {
	MaxWidth  int
	MaxHeight int

	// NoiseAmplitude is the maximum per-pixel change applied to the red and
	// green channels. Zero disables noise.
	NoiseAmplitude int

	// WatermarkOpacity is the alpha of the visible watermark, in [0, 1].
	WatermarkOpacity float64

	// Duration after which the surface cleans itself up. Zero keeps it
	// until it is hidden or unloaded.
	Duration time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxWidth:         DefaultMaxWidth,
		MaxHeight:        DefaultMaxHeight,
		NoiseAmplitude:   DefaultNoiseAmplitude,
		WatermarkOpacity: DefaultWatermarkOpacity,
		Duration:         DefaultDuration,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.NoiseAmplitude < 0 {
		o.NoiseAmplitude = 0
	}
	if o.WatermarkOpacity < 0 {
		o.WatermarkOpacity = 0
	}
	if o.WatermarkOpacity > 1 {
		o.WatermarkOpacity = 1
	}
	return o
}

const provenancePrefix = "docvault|"

// Provenance identifies who viewed which document and when. It is written
// into both watermarks.
type Provenance struct {
	Identity   string
	DocumentID string
	ViewedAt   time.Time
}

// String is the form embedded in the steganographic watermark.
func (p Provenance) String() string {
	return fmt.Sprintf("%s%s|%s|%s", provenancePrefix, p.Identity, p.DocumentID, p.ViewedAt.UTC().Format(time.RFC3339))
}

// label is the shorter form drawn on the image.
func (p Provenance) label() string {
	id := p.DocumentID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s  %s  %s", p.Identity, id, p.ViewedAt.UTC().Format("2006-01-02 15:04Z"))
}
