package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := map[float64]float64{
		1.005:    1.01,
		1.004:    1.0,
		-1.005:   -1.01,
		60.0:     60.0,
		949.9999: 950.0,
	}
	for in, want := range cases {
		require.InDelta(t, want, Round(in), 1e-9, "Round(%v)", in)
	}
}

func TestRoundPtrNil(t *testing.T) {
	require.Nil(t, RoundPtr(nil))
	v := 10.555
	require.InDelta(t, 10.56, *RoundPtr(&v), 1e-9)
}

func TestEqual(t *testing.T) {
	require.True(t, Equal(100.004, 100.0))
	require.False(t, Equal(100.01, 100.0))
}
