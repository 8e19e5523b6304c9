package postgres

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

func numeric(v uint64) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).SetUint64(v), Valid: true}
}

func toUint64(n pgtype.Numeric) (uint64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric is null")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric is not finite")
	}

	v := new(big.Int).Set(n.Int)
	if n.Exp != 0 {
		exp := n.Exp
		if exp < 0 {
			exp = -exp
		}
		pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
		if n.Exp > 0 {
			v.Mul(v, pow)
		} else {
			v.Quo(v, pow)
		}
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("numeric %s out of uint64 range", v)
	}
	return v.Uint64(), nil
}
