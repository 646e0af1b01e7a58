package helpers

import (
	"math/big"
	"testing"
)

func TestIsValidBigInt(t *testing.T) {
	cases := map[string]bool{
		"":   false,
		"1":  true,
		"1s": false,
		"-1": false,
		"123437456298465928764598276349587623948756928764958762934569": true,
	}

	for str, result := range cases {
		if IsValidBigInt(str) != result {
			t.Fail()
		}
	}
}

func TestStringToBigInt(t *testing.T) {
	cases := map[string]bool{
		"":   false,
		"1":  true,
		"1s": false,
		"-1": true,
		"123437456298465928764598276349587623948756928764958762934569": true,
	}

	for str, result := range cases {
		_, err := stringToBigInt(str)

		if err != nil && result || err == nil && !result {
			t.Fatalf("%s %s", err, str)
		}
	}
}

func TestStringToBigIntOrZero(t *testing.T) {
	if StringToBigIntOrZero("").Sign() != 0 {
		t.Fatal("empty string is not zero")
	}
	if StringToBigIntOrZero("42").Int64() != 42 {
		t.Fatal("wrong value")
	}
}

func TestToWei(t *testing.T) {
	res := ToWei(big.NewInt(10))

	if res.Cmp(new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))) != 0 {
		t.Fatalf("%s", res)
	}
}
