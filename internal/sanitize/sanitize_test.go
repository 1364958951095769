package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trims whitespace",
			input: "  hello world  ",
			want:  "hello world",
		},
		{
			name:  "strips control characters",
			input: "hel\x00lo\x07 wor\x1bld",
			want:  "hello world",
		},
		{
			name:  "keeps newline and tab",
			input: "line one\nline\ttwo",
			want:  "line one\nline\ttwo",
		},
		{
			name:  "normalizes crlf",
			input: "a\r\nb",
			want:  "a\nb",
		},
		{
			name:  "empty after cleaning",
			input: " \x00\x1f ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserText(tt.input))
		})
	}
}

func TestUserTextClampsLength(t *testing.T) {
	long := strings.Repeat("a", MaxMessageLength+500)
	got := UserText(long)
	assert.Len(t, got, MaxMessageLength)

	// multibyte runes are not split at the boundary
	multi := strings.Repeat("漢", MaxMessageLength)
	got = UserText(multi)
	assert.LessOrEqual(t, len(got), MaxMessageLength)
	assert.True(t, strings.HasSuffix(got, "漢"))
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "passthrough", input: "concepts", want: "concepts"},
		{name: "lowercase and underscores", input: "My Project!", want: "my_project"},
		{name: "collapses runs", input: "a--b..c", want: "a_b_c"},
		{name: "empty", input: "", want: DefaultIdentifier},
		{name: "all invalid", input: "!!!", want: DefaultIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Identifier(tt.input))
		})
	}
}

func TestIdentifierTruncatesWithHash(t *testing.T) {
	long := strings.Repeat("abc_", 40)
	got := Identifier(long)
	assert.LessOrEqual(t, len(got), MaxIdentifierLength)

	// distinct long inputs stay distinct
	other := Identifier(strings.Repeat("abd_", 40))
	assert.NotEqual(t, got, other)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "dialogd_concepts", CollectionName("dialogd", "concepts"))
	assert.Equal(t, "dialogd", CollectionName("dialogd", ""))
	assert.LessOrEqual(t, len(CollectionName(strings.Repeat("x", 80), "concepts")), MaxIdentifierLength)
}
