package baseline

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vericloud/vericloud/internal/features"
)

func constVec(n int, x float64) features.Vector {
	v := make(features.Vector, n)
	for i := range v {
		v[i] = x
	}
	return v
}

// fill adds count vectors whose values alternate between lo and hi.
func fill(t *testing.T, p *Profile, n, count int, lo, hi float64) {
	t.Helper()
	for i := 0; i < count; i++ {
		x := lo
		if i%2 == 1 {
			x = hi
		}
		require.NoError(t, p.Add(constVec(n, x)))
	}
}

func TestEstablish_RequiresEightyPercent(t *testing.T) {
	p := New(1, 10, 3) // capacity 10, needs 8
	fill(t, p, 3, 7, 0, 1)
	require.False(t, p.Establish())
	require.False(t, p.Established())
	require.Equal(t, 0.0, p.Deviation(constVec(3, 5)))

	fill(t, p, 3, 1, 0, 1)
	require.True(t, p.Establish())
	require.True(t, p.Established())
}

func TestEstablish_Statistics(t *testing.T) {
	p := New(1, 4, 2)
	require.NoError(t, p.Add(features.Vector{1, 10}))
	require.NoError(t, p.Add(features.Vector{3, 10}))
	require.NoError(t, p.Add(features.Vector{5, 10}))
	require.NoError(t, p.Add(features.Vector{7, 10}))
	require.True(t, p.Establish())

	s := p.Stats()
	require.InDeltaSlice(t, []float64{4, 10}, s.Mean, 1e-12)
	require.InDelta(t, 2.2360679775, s.Std[0], 1e-9) // sqrt(5), population
	require.Equal(t, Epsilon, s.Std[1])
	require.Equal(t, []float64{1, 10}, s.Min)
	require.Equal(t, []float64{7, 10}, s.Max)
}

func TestEstablish_Idempotent(t *testing.T) {
	p := New(1, 5, 4)
	fill(t, p, 4, 5, 0.2, 0.8)
	require.True(t, p.Establish())
	first := p.Stats()

	require.True(t, p.Establish())
	require.Equal(t, first, p.Stats())

	// Statistics are frozen: later samples are ignored.
	require.NoError(t, p.Add(constVec(4, 100)))
	require.True(t, p.EstablishWith(0))
	require.Equal(t, first, p.Stats())
}

func TestAdd_EvictsOldest(t *testing.T) {
	p := New(1, 3, 1)
	for _, x := range []float64{100, 1, 2, 3} {
		require.NoError(t, p.Add(features.Vector{x}))
	}
	require.Equal(t, 3, p.Len())
	require.True(t, p.Establish())
	require.InDelta(t, 2.0, p.Stats().Mean[0], 1e-12)
}

func TestAdd_IgnoresNilAndRejectsWrongLength(t *testing.T) {
	p := New(1, 2, 3)
	require.NoError(t, p.Add(nil))
	require.Equal(t, 0, p.Len())

	err := p.Add(features.Vector{1})
	require.ErrorIs(t, err, features.ErrLength)
	require.Equal(t, 0, p.Len())
}

func TestEstablishWith(t *testing.T) {
	p := New(30, 30, 2)
	require.NoError(t, p.Add(features.Vector{1, 2}))
	require.NoError(t, p.Add(features.Vector{3, 2}))

	require.False(t, p.Establish())
	require.False(t, p.EstablishWith(5))
	require.True(t, p.EstablishWith(2))
	require.InDeltaSlice(t, []float64{2, 2}, p.Stats().Mean, 1e-12)
}

func TestEstablishWith_NoSamples(t *testing.T) {
	p := New(30, 30, 3)
	require.True(t, p.EstablishWith(0))
	s := p.Stats()
	require.Equal(t, []float64{0, 0, 0}, s.Mean)
	require.Equal(t, []float64{Epsilon, Epsilon, Epsilon}, s.Std)

	// Anything off the zero baseline saturates.
	require.InDelta(t, 1.0, p.Deviation(features.Vector{1, 1, 1}), 1e-12)
	require.Equal(t, 0.0, p.Deviation(features.Vector{0, 0, 0}))
}

func TestDeviation(t *testing.T) {
	p := New(1, 4, 2)
	fill(t, p, 2, 4, 0, 2) // mean 1, std 1 per column
	require.True(t, p.Establish())

	require.Equal(t, 0.0, p.Deviation(nil))
	require.Equal(t, 0.0, p.Deviation(features.Vector{1}))
	require.InDelta(t, 0.0, p.Deviation(features.Vector{1, 1}), 1e-12)
	// z = {2, 0} → mean 1 → /5
	require.InDelta(t, 0.2, p.Deviation(features.Vector{3, 1}), 1e-12)
	// z clipped at 5 in both columns
	require.InDelta(t, 1.0, p.Deviation(features.Vector{100, -100}), 1e-12)
}

func TestDeviation_AlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = features.DefaultLength
	p := New(1, 20, n)
	for i := 0; i < 20; i++ {
		v := make(features.Vector, n)
		for j := range v {
			v[j] = rng.NormFloat64()
		}
		require.NoError(t, p.Add(v))
	}
	require.True(t, p.Establish())

	for i := 0; i < 500; i++ {
		v := make(features.Vector, n)
		for j := range v {
			v[j] = rng.NormFloat64() * float64(1+i%50)
		}
		d := p.Deviation(v)
		require.GreaterOrEqual(t, d, 0.0)
		require.LessOrEqual(t, d, 1.0)
	}
}

func TestProgress(t *testing.T) {
	p := New(1, 10, 1)
	require.Equal(t, 10, p.Capacity())
	fill(t, p, 1, 4, 0, 1)
	require.InDelta(t, 0.4, p.Progress(), 1e-12)
	require.Equal(t, Stats{}, p.Stats())
}
