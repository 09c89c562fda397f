package label

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sanitize prepares a provider label for the line-oriented event stream.
// The label is NFC-normalised, control characters and square brackets
// become spaces, and runs of whitespace collapse to one space.
// An empty result means the provider gave no usable label.
func Sanitize(label string) string {
	label = norm.NFC.String(label)

	cleaned := strings.Map(func(r rune) rune {
		if r == '[' || r == ']' || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, label)

	return strings.Join(strings.Fields(cleaned), " ")
}
