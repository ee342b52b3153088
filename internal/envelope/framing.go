package envelope

import (
	"fmt"

	kerrors "github.com/PolarWolf314/docvault/internal/errors"
)

// Frame concatenates ciphertext and tag for storage and transport.
func Frame(data *DocumentEncryptionData) []byte {
	out := make([]byte, 0, len(data.Ciphertext)+len(data.AuthTag))
	out = append(out, data.Ciphertext...)
	return append(out, data.AuthTag...)
}

// TagLengthFromSize derives the tag length from the stored frame size and the
// original plaintext size. It reports false when the size is unknown (zero)
// or the result is not a valid GCM tag length. Lengths below TagSize are
// accepted for frames without a recorded tag length and authenticate with
// fewer bits.
func TagLengthFromSize(total, originalSize int64) (int, bool) {
	if originalSize <= 0 {
		return 0, false
	}
	tagLen := total - originalSize
	if tagLen < MinTagSize || tagLen > TagSize {
		return 0, false
	}
	return int(tagLen), true
}

// TagLength returns the tag length ParseFrame will use for a frame.
func TagLength(total, originalSize int64) int {
	if n, ok := TagLengthFromSize(total, originalSize); ok {
		return n
	}
	return TagSize
}

// ParseFrame splits a stored ciphertext || tag frame. When the original size
// is known and gives a valid tag length, that length is used. Otherwise the
// frame is assumed to carry the fixed 16 byte tag written by earlier
// releases.
func ParseFrame(frame, iv []byte, originalSize int64) (*DocumentEncryptionData, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", kerrors.ErrMalformedFrame, IVSize, len(iv))
	}
	if tagLen, ok := TagLengthFromSize(int64(len(frame)), originalSize); ok {
		return splitFrame(frame, iv, tagLen)
	}
	return parseFixedTagFrame(frame, iv)
}

// ParseRecordedFrame splits a frame whose tag length was recorded when it was
// written. A frame whose size disagrees with the record has been truncated
// or padded, so it fails like any other tampered body instead of being read
// with a shorter tag.
func ParseRecordedFrame(frame, iv []byte, tagLen int, originalSize int64) (*DocumentEncryptionData, error) {
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", kerrors.ErrMalformedFrame, IVSize, len(iv))
	}
	if tagLen < MinTagSize || tagLen > TagSize {
		return nil, fmt.Errorf("%w: recorded tag length %d", kerrors.ErrMalformedFrame, tagLen)
	}
	if originalSize > 0 && int64(len(frame)) != originalSize+int64(tagLen) {
		return nil, &AuthTagError{}
	}
	return splitFrame(frame, iv, tagLen)
}

func parseFixedTagFrame(frame, iv []byte) (*DocumentEncryptionData, error) {
	return splitFrame(frame, iv, TagSize)
}

func splitFrame(frame, iv []byte, tagLen int) (*DocumentEncryptionData, error) {
	if len(frame) < tagLen {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a %d byte tag", kerrors.ErrMalformedFrame, len(frame), tagLen)
	}
	split := len(frame) - tagLen
	return &DocumentEncryptionData{
		Ciphertext: frame[:split],
		IV:         iv,
		AuthTag:    frame[split:],
	}, nil
}
