package bigint

// Modulus is an odd fixed-width modulus prepared for Montgomery-form
// arithmetic: ToMontgomery/FromMontgomery convert values in and out of
// the R = 2^(64*n) residue domain, and MontMul/MontSquare multiply or
// square two Montgomery-form values without ever performing a general
// division.
type Modulus struct {
	m     []Word // big-endian, n limbs
	n0inv Word   // -m^-1 mod 2^64
	r2    []Word // R^2 mod m, big-endian, n limbs
}

// NewModulus prepares m (big-endian, odd) for Montgomery arithmetic.
func NewModulus(m []Word) *Modulus {
	n := len(m)
	if m[n-1]&1 == 0 {
		panic("bigint: Montgomery modulus must be odd")
	}
	n0inv := negModInverse2_64(m[n-1])

	// R = 2^(64n): represented as an (n+1)-limb value with a leading 1.
	r := make([]Word, n+1)
	r[0] = 1
	mPadded := pad(m, n+1)
	_, rModRem := DivRem(r, mPadded)
	rMod := rModRem[1:] // n limbs

	rModSq := Square(pad(rMod, n)) // 2n limbs
	_, r2Rem := DivRem(rModSq, pad(m, 2*n))
	r2 := r2Rem[n:] // n limbs

	return &Modulus{m: m, n0inv: n0inv, r2: r2}
}

// negModInverse2_64 computes -m^-1 mod 2^64 for odd m via Newton-Raphson
// iteration (doubling the number of correct bits each step, starting
// from 3 correct bits).
func negModInverse2_64(m Word) Word {
	inv := m // correct mod 8
	for i := 0; i < 5; i++ {
		inv = inv * (2 - m*inv)
	}
	return 0 - inv
}

func reverseWords(a []Word) []Word {
	out := make([]Word, len(a))
	for i, w := range a {
		out[len(a)-1-i] = w
	}
	return out
}

// redc computes T * R^-1 mod m for a 2n-limb big-endian T, per the
// classical limb-at-a-time Montgomery reduction algorithm.
func (mod *Modulus) redc(bigEndianT []Word) []Word {
	n := len(mod.m)
	extended := make([]Word, 2*n+1)
	copy(extended[1:], bigEndianT)
	t := reverseWords(extended) // little-endian, length 2n+1
	mLE := reverseWords(mod.m)  // little-endian, length n

	for i := 0; i < n; i++ {
		ui := t[i] * mod.n0inv
		var carry Word
		for j := 0; j < n; j++ {
			hi, lo := mul64(ui, mLE[j])
			sum, c1 := add64(t[i+j], lo)
			sum, c2 := add64(sum, carry)
			t[i+j] = sum
			carry = hi + c1 + c2
		}
		k := i + n
		for carry != 0 {
			sum, c := add64(t[k], carry)
			t[k] = sum
			carry = c
			k++
		}
	}

	resultBE := reverseWords(t[n : 2*n+1]) // big-endian, n+1 limbs
	mPadded := pad(mod.m, n+1)
	if cmp(resultBE, mPadded) >= 0 {
		resultBE, _ = subBorrow(resultBE, mPadded)
	}
	return resultBE[1:]
}

// ToMontgomery converts a (big-endian, n limbs, 0 <= a < m) into
// Montgomery form a*R mod m.
func (mod *Modulus) ToMontgomery(a []Word) []Word {
	n := len(mod.m)
	product := Mul(pad(a, n), mod.r2)
	return mod.redc(product)
}

// FromMontgomery converts a Montgomery-form value back to its ordinary residue.
func (mod *Modulus) FromMontgomery(aMont []Word) []Word {
	n := len(mod.m)
	return mod.redc(pad(aMont, 2*n))
}

// MontMul multiplies two Montgomery-form values, returning a Montgomery-form result.
func (mod *Modulus) MontMul(a, b []Word) []Word {
	return mod.redc(Mul(a, b))
}

// MontSquare squares a Montgomery-form value, returning a Montgomery-form result.
func (mod *Modulus) MontSquare(a []Word) []Word {
	return mod.redc(Square(a))
}

// One returns the Montgomery-form representation of 1.
func (mod *Modulus) One() []Word {
	n := len(mod.m)
	one := make([]Word, n)
	one[n-1] = 1
	return mod.ToMontgomery(one)
}

// M returns the modulus in ordinary big-endian form.
func (mod *Modulus) M() []Word { return mod.m }
