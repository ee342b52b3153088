package preview

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
	logger "github.com/PolarWolf314/docvault/internal/logging"

	"github.com/awnumar/memguard"
	"github.com/coder/quartz"
)

// EventKind is an input event delivered to a surface.
type EventKind int

const (
	EventPointer EventKind = iota
	EventScroll
	EventKey
	EventContextMenu
	EventDragStart
	EventMultiTouch
)

// CleanupReason says why a surface was cleaned up.
type CleanupReason string

const (
	CleanupExpired CleanupReason = "expired"
	CleanupHidden  CleanupReason = "hidden"
	CleanupUnload  CleanupReason = "unload"
)

// TamperEvent describes an attribute change on a protected surface.
type TamperEvent struct {
	Attribute string
	Old       string
	New       string
	At        time.Time
}

// Surface holds one rendered preview. Its export primitives return noise,
// gestures that could copy the image are refused, and every attribute
// change is reported as tampering.
type Surface struct {
	prov  Provenance
	clock quartz.Clock
	log   logger.Logger

	mu       sync.Mutex
	frame    *image.NRGBA
	source   []byte
	rng      *rand.Rand
	timer    *quartz.Timer
	attrs    map[string]string
	tampered bool
	onTamper []func(TamperEvent)
	reason   CleanupReason

	once sync.Once
	done chan struct{}
}

func newSurface(frame *image.NRGBA, source []byte, prov Provenance, clock quartz.Clock, rng *rand.Rand, log logger.Logger) *Surface {
	return &Surface{
		prov:   prov,
		clock:  clock,
		log:    log,
		frame:  frame,
		source: source,
		rng:    rng,
		attrs: map[string]string{
			"protected": "true",
			"document":  prov.DocumentID,
		},
		done: make(chan struct{}),
	}
}

func (s *Surface) arm(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = s.clock.AfterFunc(d, func() {
		s.cleanup(CleanupExpired)
	}, "preview", "expiry")
}

// Provenance returns who the preview was rendered for.
func (s *Surface) Provenance() Provenance {
	return s.prov
}

// Bounds returns the rendered size.
func (s *Surface) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame.Rect
}

// Display hands the protected frame to sink.
func (s *Surface) Display(sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reason != "" {
		return kerrors.ErrPreviewClosed
	}
	return sink.Show(s.frame)
}

// EncodePNG writes a PNG of synthetic noise the size of the preview.
func (s *Surface) EncodePNG(w io.Writer) error {
	s.mu.Lock()
	img := image.NewNRGBA(s.frame.Rect)
	s.fillNoiseLocked(img.Pix)
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// PixelData returns synthetic RGBA bytes the size of the preview.
func (s *Surface) PixelData() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.frame.Pix))
	s.fillNoiseLocked(out)
	return out
}

// HandleEvent reports whether the surface accepts an input event. Context
// menus, drags and multi-touch gestures are suppressed.
func (s *Surface) HandleEvent(kind EventKind) bool {
	switch kind {
	case EventContextMenu, EventDragStart, EventMultiTouch:
		return false
	}
	return true
}

// Attributes returns a copy of the surface's attributes.
func (s *Surface) Attributes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.attrs)
}

// SetAttribute changes an attribute of the surface. The change is applied,
// but the surface is flagged as tampered and OnTamper callbacks run.
func (s *Surface) SetAttribute(name, value string) {
	s.mu.Lock()
	ev := TamperEvent{Attribute: name, Old: s.attrs[name], New: value, At: s.clock.Now()}
	s.attrs[name] = value
	s.tampered = true
	fns := append([]func(TamperEvent){}, s.onTamper...)
	s.mu.Unlock()

	s.log.Warnf("Preview of %s tampered: %s changed from %q to %q", s.prov.DocumentID, name, ev.Old, value)
	for _, fn := range fns {
		fn(ev)
	}
}

// OnTamper registers fn to run after each attribute change.
func (s *Surface) OnTamper(fn func(TamperEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTamper = append(s.onTamper, fn)
}

func (s *Surface) Tampered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tampered
}

// SetVisibility cleans the surface up as soon as it is hidden.
func (s *Surface) SetVisibility(visible bool) {
	if !visible {
		s.cleanup(CleanupHidden)
	}
}

// Unload cleans the surface up.
func (s *Surface) Unload() {
	s.cleanup(CleanupUnload)
}

// Done is closed once the surface has been cleaned up.
func (s *Surface) Done() <-chan struct{} {
	return s.done
}

// Closed returns why the surface was cleaned up, or "" while it is live.
func (s *Surface) Closed() CleanupReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// cleanup overwrites the frame with noise and wipes the decrypted bytes.
// Only the first call has any effect.
func (s *Surface) cleanup(reason CleanupReason) {
	s.once.Do(func() {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.fillNoiseLocked(s.frame.Pix)
		memguard.WipeBytes(s.source)
		s.source = nil
		s.reason = reason
		s.mu.Unlock()

		s.log.Debugf("Preview of %s cleaned up (%s)", s.prov.DocumentID, reason)
		close(s.done)
	})
}

func (s *Surface) fillNoiseLocked(buf []byte) {
	for i := range buf {
		buf[i] = uint8(s.rng.Uint32())
	}
}
