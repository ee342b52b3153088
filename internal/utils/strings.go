package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PolarWolf314/docvault/internal/ui"
)

// identityRegex accepts an email address or a user@host pair.
var identityRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+$`)

// FormatPaths formats a slice of paths into a readable string.
func FormatPaths(paths []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, path := range paths {
		b.WriteString("    - ")
		b.WriteString(ui.Path.Sprint(path))
		b.WriteString("\n")
	}
	return b.String()
}

// IsValidIdentity checks that identity looks like an email or user@host.
func IsValidIdentity(identity string) bool {
	if identity == "" {
		return false
	}
	return identityRegex.MatchString(identity)
}

// FormatSize renders a byte count as B, KiB, MiB or GiB.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
