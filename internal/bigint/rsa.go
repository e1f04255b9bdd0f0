package bigint

// Mod reduces a modulo m, where a may have a different limb width than m.
func Mod(a, m []Word) []Word {
	w := len(a)
	if len(m) > w {
		w = len(m)
	}
	_, rem := DivRem(pad(a, w), pad(m, w))
	return rem[len(rem)-len(m):]
}

// ExpMod computes base^exponent mod modulus using Montgomery-form
// left-to-right square-and-multiply. modulus must be odd (true of every
// RSA modulus DNSSEC signs with, since it is a product of two odd
// primes). Running time depends on the bit pattern of exponent, which is
// acceptable here: this package verifies signatures that are already
// public, it never handles a private exponent.
//
// The same code path serves every modulus width a DNSSEC RSA key uses
// (1024/2048/4096-bit, i.e. 16/32/64 limbs): Mul and Square already widen
// their Karatsuba recursion to whatever even limb count they are given,
// so there is no separate per-width implementation to keep in sync.
func ExpMod(base, exponent, modulus []Word) []Word {
	n := len(modulus)
	mod := NewModulus(modulus)

	baseMont := mod.ToMontgomery(Mod(base, modulus))
	result := mod.One()

	bits := len(exponent) * wordBits
	for i := 0; i < bits; i++ {
		result = mod.MontSquare(result)
		if bitAt(exponent, i) {
			result = mod.MontMul(result, baseMont)
		}
	}

	return pad(mod.FromMontgomery(result), n)
}
