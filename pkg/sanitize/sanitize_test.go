package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, "Dell OptiPlex", Clean("  Dell OptiPlex \t\n"))
}

func TestClean_EmptyAfterTrimIsAbsent(t *testing.T) {
	assert.Equal(t, "", Clean("   \t  "))
	assert.Equal(t, "", Clean(""))
}

func TestClean_TruncatesToMaxLength(t *testing.T) {
	long := strings.Repeat("a", 300)
	cleaned := Clean(long)
	assert.Len(t, cleaned, MaxFieldLength)
}

func TestClean_TruncatesByCodePoints(t *testing.T) {
	// Multi-byte runes must not be split mid-character.
	long := strings.Repeat("ç", 300)
	cleaned := Clean(long)
	assert.Equal(t, MaxFieldLength, len([]rune(cleaned)))
	assert.Equal(t, strings.Repeat("ç", MaxFieldLength), cleaned)
}

func TestClean_ShortValueUnchanged(t *testing.T) {
	assert.Equal(t, "7.2.1", Clean("7.2.1"))
}

func TestCleanOptional(t *testing.T) {
	assert.Nil(t, CleanOptional("   "))

	v := CleanOptional("  1.0  ")
	if assert.NotNil(t, v) {
		assert.Equal(t, "1.0", *v)
	}
}

func TestCleanSlice_DropsAbsentEntries(t *testing.T) {
	got := CleanSlice([]string{" 8.8.8.8 ", "   ", "1.1.1.1"})
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, got)
}

func TestCleanSlice_Empty(t *testing.T) {
	assert.Nil(t, CleanSlice(nil))
	assert.Nil(t, CleanSlice([]string{"  "}))
}
