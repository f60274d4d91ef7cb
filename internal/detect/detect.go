// Package detect assigns a content-based language tag to a file.
package detect

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
)

// TagText is the generic plain-text tag; it never has a parser
const TagText = "text"

// sniffLimit bounds how much of a file is handed to the classifier
const sniffLimit = 16 * 1024

// aliases maps classifier language names onto parser tags
var aliases = map[string]string{
	"shell":       "bash",
	"c++":         "cpp",
	"c#":          "csharp",
	"objective-c": "objc",
}

// Detector classifies files by name and content
type Detector struct{}

// New creates a Detector
func New() *Detector {
	return &Detector{}
}

// Detect returns the type tag for a file, or false when the type cannot be
// determined (binary or otherwise unrecognisable content).
func (d *Detector) Detect(path string, content []byte) (string, bool) {
	sniff := content
	if len(sniff) > sniffLimit {
		// Cut on a rune boundary so a multi-byte character is not split
		n := sniffLimit
		for n > sniffLimit-utf8.UTFMax && !utf8.RuneStart(content[n]) {
			n--
		}
		sniff = content[:n]
	}

	if enry.IsBinary(sniff) {
		return "", false
	}

	if lang := enry.GetLanguage(filepath.Base(path), sniff); lang != "" {
		return Normalize(lang), true
	}

	// Unclassified but readable text is still indexable line by line
	if utf8.Valid(sniff) {
		return TagText, true
	}

	return "", false
}

// Normalize converts a language name into a lowercase tag
func Normalize(lang string) string {
	tag := strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := aliases[tag]; ok {
		return alias
	}
	return strings.ReplaceAll(tag, " ", "_")
}
