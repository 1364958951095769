// Package sanitize cleans untrusted conversation input and builds safe
// identifiers for vector store collection names.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxMessageLength caps user message length in bytes after cleaning.
	MaxMessageLength = 4000

	// MaxIdentifierLength is the maximum length for collection name
	// components. Qdrant and chromem require 1-64 characters.
	MaxIdentifierLength = 64

	// hashSuffixLength is "_" plus an 8-char hash.
	hashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"
)

// UserText cleans a raw user message: CRLF is normalized, control
// characters other than newline and tab are stripped, surrounding
// whitespace is trimmed and the result is clamped to MaxMessageLength
// on a rune boundary.
func UserText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.TrimSpace(b.String())
	if len(out) > MaxMessageLength {
		cut := MaxMessageLength
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = strings.TrimSpace(out[:cut])
	}
	return out
}

// Identifier sanitizes a string for use in collection names: lowercase,
// invalid characters replaced with underscores, runs collapsed, result
// trimmed and truncated with a hash suffix when too long.
func Identifier(s string) string {
	if s == "" {
		return DefaultIdentifier
	}

	s = strings.ToLower(s)

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}

	sanitized := result.String()
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")

	if sanitized == "" {
		return DefaultIdentifier
	}
	if len(sanitized) > MaxIdentifierLength {
		sanitized = truncateWithHash(sanitized)
	}
	return sanitized
}

// CollectionName builds a collection name from a namespace and suffix,
// valid for both chromem and Qdrant.
func CollectionName(namespace, suffix string) string {
	name := Identifier(namespace)
	if suffix != "" {
		name = name + "_" + Identifier(suffix)
	}
	if len(name) > MaxIdentifierLength {
		name = truncateWithHash(name)
	}
	return name
}

// truncateWithHash truncates to MaxIdentifierLength while keeping a
// hash suffix so distinct long inputs stay distinct.
func truncateWithHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	truncated := strings.TrimRight(s[:MaxIdentifierLength-hashSuffixLength], "_")
	return truncated + hashSuffix
}
