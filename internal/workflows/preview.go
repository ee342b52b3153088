package workflows

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/docvault/internal/audit"
	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	"github.com/PolarWolf314/docvault/internal/files"
	"github.com/PolarWolf314/docvault/internal/preview"
	"github.com/PolarWolf314/docvault/internal/session"
	"github.com/PolarWolf314/docvault/internal/store"

	"github.com/awnumar/memguard"
)

// PreviewOptions configures the preview workflow.
type PreviewOptions struct {
	ID string

	// Duration overrides the configured preview lifetime.
	Duration time.Duration

	// Password is only needed for legacy documents.
	Password []byte
}

// PreviewResult holds a live preview. The caller displays the surface and
// should Unload it when done. The surface is unloaded anyway when the
// context passed to Preview ends, so a preview with no duration cannot
// outlive its caller.
type PreviewResult struct {
	Document *store.Record
	Surface  *preview.Surface
}

// Preview decrypts an image document and renders it onto a protected
// surface. The surface is unloaded as soon as the session is locked or
// expires.
//
// Returns ErrUnsupportedImage if the document is not a decodable image.
func (v *Vault) Preview(ctx context.Context, opts PreviewOptions) (*PreviewResult, error) {
	rec, err := v.Documents.Resolve(ctx, opts.ID)
	if err != nil {
		return nil, err
	}
	if rec.MimeType != "" && !files.IsImage(rec.MimeType) {
		return nil, fmt.Errorf("%w: %s is %s", kerrors.ErrUnsupportedImage, rec.OriginalFilename, rec.MimeType)
	}

	entry := v.Trail.Entry(audit.OpPreview)
	entry.DocumentID = rec.ID

	plaintext, err := v.decrypt(ctx, rec, opts.Password)
	if err != nil {
		v.record(entry, err)
		return nil, err
	}

	renderer := &preview.Renderer{
		Options: v.previewOptions(opts.Duration),
		Clock:   v.Clock,
		Logger:  v.Logger,
	}
	surface, err := renderer.Render(ctx, plaintext, preview.Provenance{
		Identity:   v.Trail.Identity,
		DocumentID: rec.ID,
		ViewedAt:   v.Clock.Now(),
	})
	if err != nil {
		memguard.WipeBytes(plaintext)
		v.record(entry, err)
		return nil, err
	}

	unsubscribe := v.Sessions.Subscribe(func(ev session.Event) {
		if ev.State != session.StateLoaded {
			surface.Unload()
		}
	})
	go func() {
		defer unsubscribe()
		select {
		case <-surface.Done():
		case <-ctx.Done():
			surface.Unload()
		}
	}()

	surface.OnTamper(func(ev preview.TamperEvent) {
		tamper := v.Trail.Entry(audit.OpPreview)
		tamper.DocumentID = rec.ID
		tamper.Outcome = "tampered"
		tamper.Reason = ev.Attribute
		v.Trail.Log(tamper)
	})

	v.record(entry, nil)
	return &PreviewResult{Document: rec, Surface: surface}, nil
}

func (v *Vault) previewOptions(duration time.Duration) preview.Options {
	cfg := v.Config.Preview
	opts := preview.Options{
		MaxWidth:         cfg.MaxWidth,
		MaxHeight:        cfg.MaxHeight,
		NoiseAmplitude:   cfg.NoiseAmplitude,
		WatermarkOpacity: cfg.WatermarkOpacity,
		Duration:         cfg.Duration.Duration,
	}
	if duration > 0 {
		opts.Duration = duration
	}
	return opts
}

// TraceOptions configures the trace workflow.
type TraceOptions struct {
	// Path of a lossless capture of a preview.
	Path string
}

// TraceResult holds the provenance recovered from a capture.
type TraceResult struct {
	Provenance string
}

// Trace recovers the hidden provenance from a captured preview image. It
// needs no vault.
func Trace(ctx context.Context, opts TraceOptions) (*TraceResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(opts.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, opts.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", opts.Path, err)
	}

	prov, err := preview.DecodeWatermark(data)
	if err != nil {
		return nil, err
	}
	return &TraceResult{Provenance: prov}, nil
}
