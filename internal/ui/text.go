package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

// ShortIDLength is how many characters of a document id listings show.
// Commands accept the same prefix back (see store.DocumentStore.Resolve).
const ShortIDLength = 8

// Formatter colors text, or wraps it in prefix and suffix when color is off.
type Formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f Formatter) Sprint(a ...interface{}) string {
	return f.render(fmt.Sprint(a...))
}

func (f Formatter) Sprintf(format string, a ...interface{}) string {
	return f.render(fmt.Sprintf(format, a...))
}

func (f Formatter) render(text string) string {
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

var (
	// Code is a command the user can run: yellow, or `backticks`.
	Code = Formatter{color.New(color.FgYellow), "`", "`"}

	// Path is a file or directory.
	Path = Formatter{color.New(color.FgYellow), "", ""}

	Success = Formatter{color.New(color.FgGreen), "", ""}
	Error   = Formatter{color.New(color.FgRed), "", ""}
	Warning = Formatter{color.New(color.FgYellow), "", ""}
	Info    = Formatter{color.New(color.FgCyan), "", ""}

	// Highlight is a user value such as an identity or a document name:
	// cyan, or 'quoted'.
	Highlight = Formatter{color.New(color.FgCyan), "'", "'"}

	// Muted is secondary text: gray, or (parenthesized).
	Muted = Formatter{color.New(color.FgHiBlack), "(", ")"}
)

// ShortID renders the prefix of a document id that listings show, or "-"
// for a document that has no id yet (a dry-run upload).
func ShortID(id string) string {
	if id == "" {
		return "-"
	}
	return id[:min(ShortIDLength, len(id))]
}

// Scheme renders a document's encryption scheme name. Legacy documents are
// muted since they need their upload password and are skipped by rotation.
func Scheme(name string) string {
	if name == "legacy" {
		return Muted.Sprint(name)
	}
	return name
}

// SessionState renders whether the vault is unlocked and, when the session
// expires, until when. A zero expiresAt means the session never expires.
func SessionState(unlocked bool, expiresAt time.Time) string {
	if !unlocked {
		return Warning.Sprint("locked")
	}
	if expiresAt.IsZero() {
		return Success.Sprint("unlocked")
	}
	return Success.Sprint("unlocked") + " until " + expiresAt.Local().Format("15:04:05")
}

// Outcome renders an audit outcome: "ok" as success, anything else as a
// failure. An empty outcome stays empty.
func Outcome(outcome string) string {
	switch outcome {
	case "":
		return ""
	case "ok":
		return Success.Sprint(outcome)
	default:
		return Error.Sprint(outcome)
	}
}

// EnsureNewline appends a newline unless s already ends with one.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// noColor honours NO_COLOR (https://no-color.org/) as well as fatih/color's
// own terminal detection.
func noColor() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return true
	}
	return color.NoColor
}
