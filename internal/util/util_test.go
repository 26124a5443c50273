package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsString(t *testing.T) {
	purposes := []string{"facts", "legal", "news"}
	assert.True(t, ContainsString(purposes, "legal"))
	assert.False(t, ContainsString(purposes, "examples"))
	assert.False(t, ContainsString(nil, "facts"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "kurz", TruncateString("kurz", 10, false))
	assert.Equal(t, "Radweg...", TruncateString("Radwegenetz", 9, false))
	// Word-preserving cut lands on the last space before the limit.
	assert.Equal(t, "Ausbau der...", TruncateString("Ausbau der Radwege in der Stadt", 20, true))
	// Umlauts count as single runes.
	assert.Equal(t, "Fußgä...", TruncateString("Fußgängerzone", 8, false))
	assert.Equal(t, "", TruncateString("irgendwas", 0, false))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeWhitespace("  a\t b \n c "))
	assert.Equal(t, "", NormalizeWhitespace("   "))
}
