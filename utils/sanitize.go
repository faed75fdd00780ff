package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// MaxLabelLength caps peer labels and file names echoed to other peers.
const MaxLabelLength = 128

// SanitizeLabel strips markup from text a peer reports about itself, such as
// its label or a file name, before it is relayed to the rest of the room.
// Entities in the result stay escaped.
func SanitizeLabel(input string) string {
	s := sanitizer.Sanitize(strings.TrimSpace(input))
	if utf8.RuneCountInString(s) > MaxLabelLength {
		s = string([]rune(s)[:MaxLabelLength])
	}
	return strings.TrimSpace(s)
}
