package helpers

import (
	"fmt"
	"math/big"
)

// ToWei converts whole units to the smallest denomination (multiplies input by 1e18)
func ToWei(units *big.Int) *big.Int {
	p := big.NewInt(10)
	p.Exp(p, big.NewInt(18), nil)
	p.Mul(p, units)

	return p
}

// StringToBigInt converts string to BigInt, panics on empty strings and errors
func StringToBigInt(s string) *big.Int {
	result, err := stringToBigInt(s)
	if err != nil {
		panic(err)
	}

	return result
}

func stringToBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("string is empty")
	}

	b, success := big.NewInt(0).SetString(s, 10)
	if !success {
		return nil, fmt.Errorf("cannot decode %s into big.Int", s)
	}

	return b, nil
}

// StringToBigIntOrZero is StringToBigInt for optional fields
func StringToBigIntOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}

	return StringToBigInt(s)
}

// IsValidBigInt verifies that string is a valid non-negative int
func IsValidBigInt(s string) bool {
	if s == "" {
		return false
	}

	b, success := big.NewInt(0).SetString(s, 10)
	if !success {
		return false
	}

	if b.Cmp(big.NewInt(0)) == -1 {
		return false
	}

	return true
}
