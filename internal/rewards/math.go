package rewards

import "github.com/holiman/uint256"

// Scale is the fixed-point multiplier of the reward-per-token accumulator.
const Scale uint64 = 1_000_000_000

var scale = uint256.NewInt(Scale)

// mul returns a*b, or false if the product does not fit in 64 bits.
func mul(a, b uint64) (uint64, bool) {
	z, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !z.IsUint64() {
		return 0, false
	}
	return z.Uint64(), true
}

// mulDivScale returns floor(a*b/Scale). The product is carried in 256 bits so only
// the quotient has to fit.
func mulDivScale(a, b uint64) (uint64, bool) {
	z := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	z.Div(z, scale)
	if !z.IsUint64() {
		return 0, false
	}
	return z.Uint64(), true
}

func add(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}
