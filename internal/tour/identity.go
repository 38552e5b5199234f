// Package tour derives the names a tour is known by in storage and on the
// public site.
package tour

import (
	"path"
	"strings"
	"unicode"
)

// Identity is computed once per upload.
type Identity struct {
	// DisplayName is the archive's base filename without extension.
	DisplayName string
	// Name is the storage key segment under the tours prefix.
	Name string
	// PublicFolder is the URL segment under the public base path.
	PublicFolder string
	// DestinationPrefix is toursPrefix + Name + "/".
	DestinationPrefix string
}

// FromKey derives the identity of the archive at key.
func FromKey(key, extension, toursPrefix string) Identity {
	return FromDisplayName(DisplayName(key, extension), toursPrefix)
}

// FromDisplayName derives the identity of a tour called display.
func FromDisplayName(display, toursPrefix string) Identity {
	name := SanitizeName(display)
	return Identity{
		DisplayName:       display,
		Name:              name,
		PublicFolder:      PublicFolder(display),
		DestinationPrefix: toursPrefix + name + "/",
	}
}

// DisplayName strips the directory and a case-insensitive extension from key.
func DisplayName(key, extension string) string {
	base := path.Base(key)
	if extension != "" && strings.HasSuffix(strings.ToLower(base), strings.ToLower(extension)) {
		base = base[:len(base)-len(extension)]
	}
	return strings.TrimSpace(base)
}

// SanitizeName is the storage key form: every character outside
// [A-Za-z0-9_-] becomes "_". It is idempotent.
func SanitizeName(display string) string {
	return strings.Map(func(r rune) rune {
		if isASCIIAlnum(r) || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, display)
}

// PublicFolder is the URL form: whitespace and underscores become "-",
// anything else outside [A-Za-z0-9-] is dropped, and dashes are collapsed.
func PublicFolder(display string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.TrimSpace(display) {
		switch {
		case isASCIIAlnum(r):
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_' || unicode.IsSpace(r):
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
