package fee

import (
	"math/big"
	"strings"
)

// FormatUnits renders an integer amount of a currency's smallest unit as a
// human-readable decimal string with the given precision. The conversion is
// exact for arbitrarily large integers: no floating point is involved and no
// significant digits are dropped. Trailing fractional zeros are trimmed and
// a zero amount renders as "0".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil || amount.Sign() == 0 {
		return Zero
	}

	sign := ""
	abs := amount
	if amount.Sign() < 0 {
		sign = "-"
		abs = new(big.Int).Neg(amount)
	}

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	quo, rem := new(big.Int).QuoRem(abs, base, new(big.Int))

	if rem.Sign() == 0 {
		return sign + quo.String()
	}

	frac := rem.String()
	if pad := int(decimals) - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	frac = strings.TrimRight(frac, "0")

	return sign + quo.String() + "." + frac
}

// ParseUnits converts a decimal string into an integer amount of the
// currency's smallest unit. It is the inverse of FormatUnits and rejects
// inputs with more fractional digits than the precision allows.
func ParseUnits(s string, decimals uint8) (*big.Int, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, false
	}
	if len(frac) > int(decimals) {
		return nil, false
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	amount, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, false
	}
	return amount, true
}
