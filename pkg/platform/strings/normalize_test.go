package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIdentifier(t *testing.T) {
	t.Run("lowercases and trims", func(t *testing.T) {
		assert.Equal(t, "alice@example.com", NormalizeIdentifier("  Alice@Example.COM "))
	})

	t.Run("plain username passes through", func(t *testing.T) {
		assert.Equal(t, "bob", NormalizeIdentifier("bob"))
	})

	t.Run("whitespace-only becomes empty", func(t *testing.T) {
		assert.Equal(t, "", NormalizeIdentifier("   "))
	})
}

func TestDedupeAndTrim(t *testing.T) {
	t.Run("removes duplicates and blanks", func(t *testing.T) {
		got := DedupeAndTrim([]string{"  10.0.0.0/8 ", "192.168.0.0/16", "10.0.0.0/8", "", "  "})
		assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, got)
	})

	t.Run("empty input returned as-is", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrim(nil))
	})
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"})
	assert.Equal(t, []string{"foo", "bar"}, got)
}
