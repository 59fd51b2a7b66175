package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVector_Validate(t *testing.T) {
	require.NoError(t, Vector(nil).Validate(DefaultLength))
	require.NoError(t, make(Vector, DefaultLength).Validate(DefaultLength))

	err := Vector{1, 2, 3}.Validate(DefaultLength)
	require.ErrorIs(t, err, ErrLength)

	err = Vector{1, math.NaN()}.Validate(2)
	require.ErrorIs(t, err, ErrNonFinite)

	err = Vector{math.Inf(1), 0}.Validate(2)
	require.ErrorIs(t, err, ErrNonFinite)
}

func TestVector_Clone(t *testing.T) {
	require.Nil(t, Vector(nil).Clone())

	v := Vector{1, 2}
	c := v.Clone()
	c[0] = 9
	require.Equal(t, 1.0, v[0])
}
