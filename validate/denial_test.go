package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnsprover/dnsprover/internal/wire"
)

func name(t *testing.T, s string) wire.Name {
	t.Helper()
	n, err := wire.ParseName(s)
	require.NoError(t, err)
	return n
}

func TestCanonicalLessOrdering(t *testing.T) {
	names := []string{"example.", "a.example.", "z.example.", "zz.example."}
	for i := 0; i+1 < len(names); i++ {
		assert.True(t, canonicalLess(name(t, names[i]), name(t, names[i+1])),
			"%s should sort before %s", names[i], names[i+1])
	}
}

func TestNsecCoversOrdinary(t *testing.T) {
	owner := name(t, "a.example.")
	next := name(t, "z.example.")
	assert.True(t, nsecCovers(owner, next, name(t, "m.example.")))
	assert.False(t, nsecCovers(owner, next, name(t, "zz.example.")))
}

func TestNsecCoversWrapAtApex(t *testing.T) {
	owner := name(t, "z.example.")
	next := name(t, "example.") // wraps back to the zone apex
	assert.True(t, nsecCovers(owner, next, name(t, "zz.example.")))
	assert.False(t, nsecCovers(owner, next, name(t, "a.example.")))
	assert.False(t, nsecCovers(owner, next, name(t, "m.example.")))
}

// Known RFC 4648 section 10 test vectors translated into the base32hex
// alphabet (a pure alphabet substitution of the same bit groupings).
func TestBase32HexEncodeKnownVectors(t *testing.T) {
	cases := []struct{ in, want string }{
		{"f", "CO"},
		{"fo", "CPNG"},
		{"foo", "CPNMU"},
		{"foob", "CPNMUOG"},
		{"fooba", "CPNMUOJ1"},
		{"foobar", "CPNMUOJ1E8"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, base32HexEncode([]byte(c.in)), "input %q", c.in)
	}
}

func TestNsec3HashDeterministic(t *testing.T) {
	n := name(t, "example.com")
	h1 := nsec3Hash(n, wire.NSEC3HashSHA1, 1, []byte{0xAA, 0xBB})
	h2 := nsec3Hash(n, wire.NSEC3HashSHA1, 1, []byte{0xAA, 0xBB})
	assert.Equal(t, h1, h2)
	assert.NotEmpty(t, h1)

	h3 := nsec3Hash(n, wire.NSEC3HashSHA1, 2, []byte{0xAA, 0xBB})
	assert.NotEqual(t, h1, h3)
}

func TestWildcardAt(t *testing.T) {
	assert.Equal(t, name(t, "*.example.com"), wildcardAt(name(t, "www.example.com")))
}
