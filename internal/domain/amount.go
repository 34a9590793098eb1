package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPointsDivisor is the denominator of every ratio expressed in basis points.
const BasisPointsDivisor = 10000

var ErrAmountOverflow = errors.New("amount overflows uint256")

// Amount is a non-negative fixed-point quantity in the event's native unit (uint256 on-chain).
// The zero value is 0 and is ready to use.
type Amount struct {
	u uint256.Int
}

func NewAmount(v uint64) Amount {
	var a Amount
	a.u.SetUint64(v)
	return a
}

// AmountFromBig returns ErrAmountOverflow for negative values or values wider than 256 bits.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b == nil {
		return Amount{}, nil
	}
	if b.Sign() < 0 {
		return Amount{}, fmt.Errorf("negative amount %s: %w", b.String(), ErrAmountOverflow)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return Amount{}, fmt.Errorf("amount %s: %w", b.String(), ErrAmountOverflow)
	}
	return Amount{u: *u}, nil
}

// ParseAmount accepts a base-10 string.
func ParseAmount(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return AmountFromBig(b)
}

func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	if _, overflow := out.u.AddOverflow(&a.u, &b.u); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return out, nil
}

// MulDivBps computes floor(a * bps / 10000).
func (a Amount) MulDivBps(bps uint64) (Amount, error) {
	var out Amount
	if _, overflow := out.u.MulOverflow(&a.u, uint256.NewInt(bps)); overflow {
		return Amount{}, ErrAmountOverflow
	}
	out.u.Div(&out.u, uint256.NewInt(BasisPointsDivisor))
	return out, nil
}

func (a Amount) IsZero() bool {
	return a.u.IsZero()
}

func (a Amount) Cmp(b Amount) int {
	return a.u.Cmp(&b.u)
}

func (a Amount) Uint64() (uint64, bool) {
	return a.u.Uint64(), a.u.IsUint64()
}

func (a Amount) BigInt() *big.Int {
	return a.u.ToBig()
}

func (a Amount) String() string {
	return a.u.ToBig().String()
}

// MarshalJSON writes a quoted decimal so values above 2^53 survive JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*a = Amount{}
		return nil
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
