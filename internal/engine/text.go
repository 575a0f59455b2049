package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextPolicy decides what happens to category bytes that are not valid UTF-8.
// Valid UTF-8 is always returned unchanged.
type TextPolicy uint8

const (
	// ReplaceInvalid substitutes U+FFFD for every invalid sequence.
	ReplaceInvalid TextPolicy = iota
	// StripInvalid drops invalid bytes.
	StripInvalid
	// Windows1252Fallback re-reads a whole invalid value as Windows-1252,
	// which is what legacy Portuguese cadastre exports tend to be.
	Windows1252Fallback
)

func (p TextPolicy) String() string {
	switch p {
	case ReplaceInvalid:
		return "replace"
	case StripInvalid:
		return "strip"
	case Windows1252Fallback:
		return "windows1252"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseTextPolicy maps a config value to a TextPolicy. Empty means replace.
func ParseTextPolicy(s string) (TextPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ReplaceInvalid, nil
	case "strip":
		return StripInvalid, nil
	case "windows1252", "cp1252":
		return Windows1252Fallback, nil
	default:
		return ReplaceInvalid, fmt.Errorf("unknown text policy %q (must be replace, strip or windows1252)", s)
	}
}

// Decode turns one value's bytes into a string under the policy.
func (p TextPolicy) Decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	switch p {
	case StripInvalid:
		return strings.ToValidUTF8(string(b), "")
	case Windows1252Fallback:
		out, err := charmap.Windows1252.NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}

	// The x/text UTF-8 decoder never fails; it emits U+FFFD per bad sequence.
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
