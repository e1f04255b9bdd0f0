package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dnsprover/dnsprover/internal/wire"
)

func TestKeyTagKnownVector(t *testing.T) {
	// Flags=0x0100 (ZONE), Protocol=3, Algorithm=8, PublicKey={1,2,3}.
	// RDATA = 01 00 03 08 01 02 03; folding big-endian pairs per RFC 4034
	// appendix B gives 256+0+768+8+256+2+768 = 2058, no carry fold needed.
	k := wire.DNSKEY{Flags: 0x0100, Protocol: 3, Algorithm: 8, PublicKey: []byte{1, 2, 3}}
	assert.Equal(t, uint16(2058), keyTag(k))
}

func TestKeyTagChangesWithPublicKey(t *testing.T) {
	k1 := wire.DNSKEY{Flags: 0x0100, Protocol: 3, Algorithm: 8, PublicKey: []byte{1, 2, 3}}
	k2 := wire.DNSKEY{Flags: 0x0100, Protocol: 3, Algorithm: 8, PublicKey: []byte{1, 2, 4}}
	assert.NotEqual(t, keyTag(k1), keyTag(k2))
}

func TestDSDigestDeterministicAndSizedByType(t *testing.T) {
	owner, err := wire.ParseName("example.com")
	assert.NoError(t, err)
	k := wire.DNSKEY{Name: owner, Flags: 0x0100, Protocol: 3, Algorithm: 8, PublicKey: []byte{1, 2, 3, 4, 5}}

	d1, ok := dsDigest(owner, k, 2)
	assert.True(t, ok)
	assert.Len(t, d1, 32)

	d2, ok := dsDigest(owner, k, 2)
	assert.True(t, ok)
	assert.Equal(t, d1, d2)

	d3, ok := dsDigest(owner, k, 1)
	assert.True(t, ok)
	assert.Len(t, d3, 20)
	assert.NotEqual(t, d1, d3)

	_, ok = dsDigest(owner, k, 99)
	assert.False(t, ok)
}
