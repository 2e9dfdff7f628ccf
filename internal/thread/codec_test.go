package thread

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortIDDeterministic(t *testing.T) {
	a := ShortIDFor("3f1c9a2e-1111-4222-8333-444455556666", 6)
	b := ShortIDFor("3f1c9a2e-1111-4222-8333-444455556666", 6)
	assert.Equal(t, a, b)
	assert.Len(t, a, 6)
	assert.Regexp(t, `^[A-Z0-9]{6}$`, a)
}

func TestShortIDLengthExtension(t *testing.T) {
	id := "3f1c9a2e-1111-4222-8333-444455556666"
	six := ShortIDFor(id, 6)
	seven := ShortIDFor(id, 7)
	eight := ShortIDFor(id, 8)
	assert.Len(t, seven, 7)
	assert.Len(t, eight, 8)
	// Extension keeps the shorter token as a prefix.
	assert.Equal(t, six, seven[:6])
	// Out-of-range lengths clamp.
	assert.Len(t, ShortIDFor(id, 3), 6)
	assert.Len(t, ShortIDFor(id, 20), 8)
}

func TestShortIDDistinctTasks(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		id := ShortIDFor(fmt.Sprintf("task-%d", i), 6)
		assert.False(t, seen[id], "collision at %d", i)
		seen[id] = true
	}
}

func TestFormatSubject(t *testing.T) {
	got := FormatSubject("Login broken", "A2B3C4")
	assert.Equal(t, "Login broken [IG-TASK:#A2B3C4]", got)

	// Already tokenized subjects stay untouched.
	assert.Equal(t, got, FormatSubject(got, "A2B3C4"))
	assert.Equal(t, got, FormatSubject(got, "OTHER1"))

	assert.Equal(t, "[IG-TASK:#A2B3C4]", FormatSubject("", "A2B3C4"))
}

func TestExtractShortID(t *testing.T) {
	id, ok := ExtractShortID("Re: Login broken [IG-TASK:#A2B3C4]")
	require.True(t, ok)
	assert.Equal(t, "A2B3C4", id)

	// Case-insensitive, first match wins.
	id, ok = ExtractShortID("re: [ig-task:#a2b3c4] and [IG-TASK:#ZZZZZZ]")
	require.True(t, ok)
	assert.Equal(t, "A2B3C4", id)

	// 8-char tokens parse too.
	id, ok = ExtractShortID("[IG-TASK:#A2B3C4D5]")
	require.True(t, ok)
	assert.Equal(t, "A2B3C4D5", id)

	_, ok = ExtractShortID("no token here")
	assert.False(t, ok)

	// Too-short tokens do not match.
	_, ok = ExtractShortID("[IG-TASK:#ABC]")
	assert.False(t, ok)
}

func TestRoundTrip(t *testing.T) {
	for _, subject := range []string{"", "Hello", "Re: Fwd: x", "brackets [x]"} {
		for _, id := range []string{"A2B3C4", "ZZZZZZ7", "Q2W3E4R5"} {
			got, ok := ExtractShortID(FormatSubject(subject, id))
			require.True(t, ok, "subject %q id %q", subject, id)
			assert.Equal(t, id, got)
		}
	}
}
