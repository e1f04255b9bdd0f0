package bigint

// Mul multiplies a and b, both big-endian limb slices of the same even
// length n, returning a 2n-limb big-endian product. For n >= 4 it uses
// one level of Karatsuba recursion (three half-width multiplies instead
// of four); smaller widths fall back to schoolbook multiplication, which
// is already optimal at that size.
func Mul(a, b []Word) []Word {
	n := len(a)
	if n != len(b) {
		panic("bigint: Mul operands must be the same length")
	}
	if n < 4 || n%2 != 0 {
		return mulSchoolbook(a, b)
	}

	half := n / 2
	aHi, aLo := a[:half], a[half:]
	bHi, bLo := b[:half], b[half:]

	// z2 = aHi*bHi, z0 = aLo*bLo (each 2*half limbs)
	z2 := mulRec(aHi, bHi)
	z0 := mulRec(aLo, bLo)

	// z1 = (aHi+aLo)*(bHi+bLo) - z2 - z0, computed with one extra limb
	// of headroom to absorb the carry out of the additions.
	aSum, _ := addCarry(pad(aHi, half+1), pad(aLo, half+1))
	bSum, _ := addCarry(pad(bHi, half+1), pad(bLo, half+1))
	z1full := mulRec(aSum, bSum) // (half+1)*2 limbs

	z1 := subWiden(z1full, z2, z0)

	// Combine: result = z2*B^(2*half) + z1*B^half + z0, where B=2^(64*half).
	result := make([]Word, 2*n)
	copy(result[shiftedStart(2*n, 0, len(z0)):], z0)
	addAt(result, z1, shiftedStart(2*n, half, len(z1)))
	addAt(result, z2, shiftedStart(2*n, n, len(z2)))
	return result
}

// shiftedStart returns the index into a dstLen-limb big-endian buffer at
// which a srcLen-limb value lands when multiplied by B^shiftLimbs (B being
// 2^64, the limb radix).
func shiftedStart(dstLen, shiftLimbs, srcLen int) int {
	return dstLen - shiftLimbs - srcLen
}

// mulRec is the recursive entry point used internally by Mul; it allows
// operand lengths that are not necessarily even by falling back to
// schoolbook multiplication.
func mulRec(a, b []Word) []Word {
	if len(a) != len(b) || len(a) < 4 || len(a)%2 != 0 {
		return mulSchoolbook(a, b)
	}
	return Mul(a, b)
}

// pad left-pads a big-endian limb slice with zero limbs to reach length n.
func pad(a []Word, n int) []Word {
	if len(a) == n {
		return a
	}
	out := make([]Word, n)
	copy(out[n-len(a):], a)
	return out
}

// subWiden computes full - z2 - z0 where full, z2, z0 may have differing
// lengths; all are treated as big-endian magnitudes. The result has
// exactly len(full) limbs; leading zero limbs are not trimmed.
func subWiden(full, z2, z0 []Word) []Word {
	w := len(full)
	z2w := pad(z2, w)
	z0w := pad(z0, w)
	r, _ := subBorrow(full, z2w)
	r, _ = subBorrow(r, z0w)
	return r
}

// addAt adds src into dst (both big-endian). startIdx is the index into
// dst where src's most significant limb is added, so src's least
// significant limb lands at dst[startIdx+len(src)-1]; dst's existing
// value grows in place with carry
// propagation toward the front (more significant limbs) of dst.
func addAt(dst, src []Word, startIdx int) {
	if startIdx < 0 {
		// src is wider than the room available at this position; this
		// cannot happen for the fixed widths Mul is called with, but
		// guard defensively by clamping.
		src = src[-startIdx:]
		startIdx = 0
	}
	end := startIdx + len(src)
	if end > len(dst) {
		src = src[:len(src)-(end-len(dst))]
		end = len(dst)
	}
	var carry Word
	for i := len(src) - 1; i >= 0; i-- {
		di := startIdx + i
		s := dst[di] + src[i] + carry
		if carry == 1 {
			carry = boolWord(s <= dst[di])
		} else {
			carry = boolWord(s < dst[di])
		}
		dst[di] = s
	}
	for i := startIdx - 1; i >= 0 && carry != 0; i-- {
		s := dst[i] + carry
		carry = boolWord(s < dst[i])
		dst[i] = s
	}
}

// Square computes a*a using the three-half-width-multiply identity
// (hi^2, lo^2, hi*lo) instead of the four multiplies a naive a*a via Mul
// would perform, halving the work for the cross term.
func Square(a []Word) []Word {
	n := len(a)
	if n < 4 || n%2 != 0 {
		return mulSchoolbook(a, a)
	}
	half := n / 2
	hi, lo := a[:half], a[half:]

	hi2 := mulRec(hi, hi)  // 2*half limbs
	lo2 := mulRec(lo, lo)  // 2*half limbs
	hilo := mulRec(hi, lo) // 2*half limbs

	result := make([]Word, 2*n)
	copy(result[shiftedStart(2*n, 0, len(lo2)):], lo2)
	addAt(result, hi2, shiftedStart(2*n, n, len(hi2)))
	// 2*hilo, shifted by half limbs: add hilo twice at the same offset.
	crossStart := shiftedStart(2*n, half, len(hilo))
	addAt(result, hilo, crossStart)
	addAt(result, hilo, crossStart)
	return result
}
