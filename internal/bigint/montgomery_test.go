package bigint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpModSmall(t *testing.T) {
	base := FromBytes([]byte{2}, 1)
	exp := FromBytes([]byte{10}, 1)
	modulus := FromBytes([]byte{0x03, 0xE7}, 1) // 999, odd

	got := ExpMod(base, exp, modulus)
	assert.Equal(t, byte(25), ToBytes(got)[7]) // 2^10 mod 999 = 1024-999 = 25
}

func TestExpModOne(t *testing.T) {
	base := FromBytes([]byte{7}, 1)
	exp := FromBytes([]byte{0}, 1)
	modulus := FromBytes([]byte{11}, 1)

	got := ExpMod(base, exp, modulus)
	assert.Equal(t, byte(1), ToBytes(got)[7])
}

func TestMontgomeryRoundTrip(t *testing.T) {
	modulus := FromBytes([]byte{0x03, 0xE7}, 1)
	mod := NewModulus(modulus)

	a := FromBytes([]byte{42}, 1)
	aMont := mod.ToMontgomery(a)
	back := mod.FromMontgomery(pad(aMont, 1))
	assert.Equal(t, a, back)
}

func TestMontMulMatchesDirectMulMod(t *testing.T) {
	modulus := FromBytes([]byte{0x03, 0xE7}, 1) // 999
	mod := NewModulus(modulus)

	a := FromBytes([]byte{17}, 1)
	b := FromBytes([]byte{23}, 1)

	aMont := mod.ToMontgomery(a)
	bMont := mod.ToMontgomery(b)
	prodMont := mod.MontMul(aMont, bMont)
	got := mod.FromMontgomery(pad(prodMont, 1))

	_, want := DivRem(Mul(a, b), pad(modulus, 2))
	require.Equal(t, want[len(want)-1:], got)
}
