package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogistic(t *testing.T) {
	l, err := NewLogistic([]float64{1, -1}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, l.Width())

	p, err := l.PredictProba([]float64{0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)

	p, err = l.PredictProba([]float64{2, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-2)), p, 1e-12)

	_, err = l.PredictProba([]float64{1})
	require.ErrorIs(t, err, ErrDimension)

	_, err = NewLogistic(nil, 0)
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestStandardScaler(t *testing.T) {
	s, err := NewStandardScaler([]float64{1, 2, 3}, []float64{2, 0, 0.5})
	require.NoError(t, err)

	out, err := s.Transform([]float64{3, 5, 4})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 3, 2}, out, 1e-12)

	_, err = s.Transform([]float64{1, 2})
	require.ErrorIs(t, err, ErrDimension)

	_, err = NewStandardScaler([]float64{1}, []float64{1, 2})
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestIdentity(t *testing.T) {
	in := []float64{1, 2}
	out, err := Identity{}.Transform(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
	out[0] = 9
	require.Equal(t, 1.0, in[0])
}

// stump splits on feature 0 at 0.5.
var stump = []Node{
	{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
	{Left: -1, Right: -1, Value: 0.2},
	{Left: -1, Right: -1, Value: 0.9},
}

func TestTreeEnsemble_Mean(t *testing.T) {
	second := []Node{
		{Feature: 1, Threshold: 0, Left: 1, Right: 2},
		{Value: 0.0},
		{Value: 1.0},
	}
	e, err := NewTreeEnsemble([][]Node{stump, second}, "", 0)
	require.NoError(t, err)
	require.Equal(t, 2, e.Width())

	tests := []struct {
		x    []float64
		want float64
	}{
		{[]float64{0.1, -1}, 0.1},
		{[]float64{0.5, -1}, 0.1}, // <= goes left
		{[]float64{0.9, 1}, 0.95},
	}
	for _, tt := range tests {
		p, err := e.PredictProba(tt.x)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, p, 1e-12, "x=%v", tt.x)
	}

	_, err = e.PredictProba([]float64{1})
	require.ErrorIs(t, err, ErrDimension)
}

func TestTreeEnsemble_Logit(t *testing.T) {
	margins := []Node{
		{Feature: 0, Threshold: 0, Left: 1, Right: 2},
		{Value: -1},
		{Value: 1},
	}
	e, err := NewTreeEnsemble([][]Node{margins}, AggregateLogit, 0.5)
	require.NoError(t, err)

	p, err := e.PredictProba([]float64{1})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(1), p, 1e-12)
}

func TestNewTreeEnsemble_Invalid(t *testing.T) {
	tests := map[string][][]Node{
		"no trees":      nil,
		"empty tree":    {{}},
		"backward link": {{{Feature: 0, Left: 1, Right: 2}, {Feature: 0, Left: 0, Right: 2}, {}}},
		"out of range":  {{{Feature: 0, Left: 1, Right: 5}, {}}},
		"negative":      {{{Feature: -1, Left: 1, Right: 2}, {}, {}}},
	}
	for name, trees := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewTreeEnsemble(trees, AggregateMean, 0)
			require.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}

	_, err := NewTreeEnsemble([][]Node{stump}, "median", 0)
	require.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestBoosterEnsemble(t *testing.T) {
	neg, pos := -0.4, 0.7
	root := boosterNode{
		NodeID: 0, Split: "f2", SplitCondition: 1.5, Yes: 1, No: 2,
		Children: []boosterNode{
			{NodeID: 2, Leaf: &pos},
			{NodeID: 1, Leaf: &neg},
		},
	}
	e, err := newBoosterEnsemble([]boosterNode{root}, 0.5)
	require.NoError(t, err)
	require.Equal(t, 3, e.Width())

	p, err := e.PredictProba([]float64{0, 0, 1})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(neg), p, 1e-12)

	// Booster splits are strict: equality goes to "no".
	p, err = e.PredictProba([]float64{0, 0, 1.5})
	require.NoError(t, err)
	assert.InDelta(t, sigmoid(pos), p, 1e-12)
}

func TestBoosterEnsemble_Invalid(t *testing.T) {
	_, err := newBoosterEnsemble([]boosterNode{{NodeID: 0, Split: "f0", Yes: 1, No: 2}}, 0.5)
	require.ErrorIs(t, err, ErrInvalidArtifact)
	assert.Contains(t, err.Error(), "not defined")

	_, err = newBoosterEnsemble([]boosterNode{{NodeID: 0, Split: "age"}}, 0.5)
	require.ErrorIs(t, err, ErrInvalidArtifact)

	// A self-referencing split never reaches a leaf.
	_, err = newBoosterEnsemble([]boosterNode{{NodeID: 0, Split: "f0", Yes: 0, No: 0}}, 0.5)
	require.ErrorIs(t, err, ErrInvalidArtifact)
}
