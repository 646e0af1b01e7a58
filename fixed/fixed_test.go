package fixed

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

func TestAddSub(t *testing.T) {
	sum, err := Add(big.NewInt(2), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, "5", sum.String())

	_, err = Add(maxUint256(), big.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	diff, err := Sub(big.NewInt(3), big.NewInt(3))
	require.NoError(t, err)
	require.Zero(t, diff.Sign())

	_, err = Sub(big.NewInt(2), big.NewInt(3))
	require.ErrorIs(t, err, ErrUnderflow)

	_, err = Add(big.NewInt(-1), big.NewInt(1))
	require.ErrorIs(t, err, ErrUnderflow)
}

func TestMul(t *testing.T) {
	p, err := Mul(big.NewInt(7), big.NewInt(6))
	require.NoError(t, err)
	require.Equal(t, "42", p.String())

	_, err = Mul(maxUint256(), big.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDivisionRounding(t *testing.T) {
	data := []struct {
		x, y     int64
		down, up int64
	}{
		{x: 10, y: 3, down: 3, up: 4},
		{x: 9, y: 3, down: 3, up: 3},
		{x: 0, y: 5, down: 0, up: 0},
		{x: 1, y: 2, down: 0, up: 1},
	}

	for _, item := range data {
		down, err := Div(big.NewInt(item.x), big.NewInt(item.y))
		require.NoError(t, err)
		up, err := DivUp(big.NewInt(item.x), big.NewInt(item.y))
		require.NoError(t, err)

		if down.Int64() != item.down {
			t.Errorf("Div(%d, %d) is %d, but expected %d", item.x, item.y, down.Int64(), item.down)
		}
		if up.Int64() != item.up {
			t.Errorf("DivUp(%d, %d) is %d, but expected %d", item.x, item.y, up.Int64(), item.up)
		}
	}

	_, err := Div(big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
	_, err = DivUp(big.NewInt(1), Zero())
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivWideIntermediate(t *testing.T) {
	max := maxUint256()

	// max * max / max does not fit in 256 bits halfway through
	q, err := MulDiv(max, max, max)
	require.NoError(t, err)
	require.Equal(t, max.String(), q.String())

	_, err = MulDiv(max, big.NewInt(2), big.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	down, err := MulDiv(big.NewInt(5), big.NewInt(5), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, "8", down.String())

	up, err := MulDivUp(big.NewInt(5), big.NewInt(5), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, "9", up.String())

	_, err = MulDiv(big.NewInt(5), big.NewInt(5), nil)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestWadAndBps(t *testing.T) {
	half := big.NewInt(5e17)
	three := new(big.Int).Mul(big.NewInt(3), One)

	v, err := MulWad(three, half)
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", v.String())

	v, err = DivWad(big.NewInt(1), big.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, "333333333333333333", v.String())

	fee, err := Bps(big.NewInt(999), 30)
	require.NoError(t, err)
	require.Equal(t, "2", fee.String())

	fee, err = Bps(big.NewInt(1000), MaxBps)
	require.NoError(t, err)
	require.Equal(t, "1000", fee.String())
}

func TestMinMax(t *testing.T) {
	a, b := big.NewInt(1), big.NewInt(2)
	require.Equal(t, a, Min(a, b))
	require.Equal(t, b, Max(a, b))
}
