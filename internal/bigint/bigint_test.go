package bigint

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxWord = ^Word(0)

func TestMulSchoolbookAllOnes(t *testing.T) {
	a := []Word{maxWord, maxWord}
	got := mulSchoolbook(a, a)
	want := []Word{maxWord, maxWord - 1, 0, 1}
	assert.Equal(t, want, got)
}

func TestMulMatchesSchoolbookAcrossWidths(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, width := range []int{2, 4, 8, 16} {
		a := randomLimbs(r, width)
		b := randomLimbs(r, width)
		assert.Equal(t, mulSchoolbook(a, b), Mul(a, b), "width=%d", width)
	}
}

func TestSquareMatchesMulSelf(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for _, width := range []int{2, 4, 8, 16} {
		a := randomLimbs(r, width)
		assert.Equal(t, Mul(a, a), Square(a), "width=%d", width)
	}
}

func TestDivRemRoundTrips(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		num := randomLimbs(r, 4)
		den := randomLimbs(r, 4)
		if isZero(den) {
			den[3] = 1
		}
		q, rem := DivRem(num, den)
		// reconstruct: q*den + rem should equal num, worked out in
		// double-width space so a nonzero high half is caught rather
		// than silently truncated.
		prod := Mul(q, den) // 8 limbs
		sum, carry := addCarry(prod, pad(rem, 8))
		require.Zero(t, carry, "unexpected carry reconstructing numerator")
		assert.Equal(t, pad(num, 8), sum)
		assert.Equal(t, -1, cmpOrEqual(rem, den))
	}
}

func cmpOrEqual(rem, den []Word) int {
	if cmp(rem, den) < 0 {
		return -1
	}
	return 0
}

func TestModInverseKnownValue(t *testing.T) {
	// 3^-1 mod 11 = 4, since 3*4=12=11+1.
	a := FromBytes([]byte{3}, 1)
	m := FromBytes([]byte{11}, 1)
	inv, err := ModInverse(a, m)
	require.NoError(t, err)
	assert.Equal(t, byte(4), ToBytes(inv)[7])
}

func TestModInverseRejectsNonInvertible(t *testing.T) {
	a := FromBytes([]byte{6}, 1)
	m := FromBytes([]byte{9}, 1) // gcd(6,9)=3
	_, err := ModInverse(a, m)
	assert.ErrorIs(t, err, ErrNotInvertible)
}

func TestFromBytesToBytesRoundTrip(t *testing.T) {
	b := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	limbs := FromBytes(b, 1)
	out := ToBytes(limbs)
	assert.Equal(t, []byte{0, 0, 0, 0, 0xDE, 0xAD, 0xBE, 0xEF}, out)
}

func randomLimbs(r *rand.Rand, n int) []Word {
	out := make([]Word, n)
	for i := range out {
		out[i] = r.Uint64()
	}
	return out
}
