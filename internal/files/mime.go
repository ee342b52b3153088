package files

import (
	"github.com/gabriel-vasile/mimetype"
)

// DetectMimeType sniffs the content type of data. Unknown content is
// reported as application/octet-stream.
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsImage reports whether mimeType is one the preview renderer can decode.
func IsImage(mimeType string) bool {
	mtype := mimetype.Lookup(mimeType)
	if mtype == nil {
		return false
	}
	for _, supported := range []string{"image/png", "image/jpeg", "image/gif", "image/bmp", "image/webp"} {
		if mtype.Is(supported) {
			return true
		}
	}
	return false
}
