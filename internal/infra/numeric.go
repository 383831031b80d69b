package infra

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

// Numeric encodes a minimal-unit integer for a NUMERIC(78,0) column.
func Numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		v = new(big.Int)
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}

// BigInt decodes a NUMERIC column holding an integer.
func BigInt(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid {
		return nil, fmt.Errorf("numeric is null")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("numeric is not finite")
	}
	v := new(big.Int)
	if n.Int != nil {
		v.Set(n.Int)
	}
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil)
		q, r := new(big.Int).QuoRem(v, div, new(big.Int))
		if r.Sign() != 0 {
			return nil, fmt.Errorf("numeric %s has a fractional part", n.Int)
		}
		v = q
	}
	return v, nil
}
