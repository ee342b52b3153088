// Package preview renders decrypted images onto a protected surface.
//
// A rendered Surface carries three deterrents against re-exfiltration of
// the pixels it shows: random noise on the red and green channels so no
// two renders are identical, a visible tiled watermark naming the viewer
// and document, and the same provenance hidden in the low bit of the blue
// channel, recoverable with ExtractWatermark from a lossless capture.
//
// The surface's own export primitives (EncodePNG, PixelData) return noise,
// copy gestures are refused, and attribute changes are reported as
// tampering. When the surface expires, is hidden or is unloaded, the frame
// is overwritten with noise and the decrypted bytes are wiped.
//
// This is probabilistic deterrence, not secrecy. Anyone who can see the
// pixels can photograph or screen-capture them; the watermarks only make
// such copies attributable.
package preview
