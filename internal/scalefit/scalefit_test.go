package scalefit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTracksLargestAbsoluteValuePerLayer(t *testing.T) {
	samples := []Sample{
		{LayerName: "relu1", Values: []float64{-1, 2, -3}},
		{LayerName: "relu2", Values: []float64{0.5, -0.4}},
		{LayerName: "relu1", Values: []float64{5, -2}},
	}

	ranges := Observe(samples)
	require.Len(t, ranges, 2)
	assert.Equal(t, "relu1", ranges[0].LayerName)
	assert.Equal(t, 5.0, ranges[0].Bound)
	assert.Equal(t, "relu2", ranges[1].LayerName)
	assert.Equal(t, 0.5, ranges[1].Bound)
}

func TestObservePreservesFirstSeenOrder(t *testing.T) {
	samples := []Sample{
		{LayerName: "b", Values: []float64{1}},
		{LayerName: "a", Values: []float64{1}},
	}
	ranges := Observe(samples)
	require.Len(t, ranges, 2)
	assert.Equal(t, "b", ranges[0].LayerName)
	assert.Equal(t, "a", ranges[1].LayerName)
}

func TestScale(t *testing.T) {
	assert.InDelta(t, 4.0, Scale(4, 1.0), 1e-9)
	assert.InDelta(t, 5.0, Scale(4, 1.25), 1e-9)
	assert.Equal(t, 1.0, Scale(0, 1.25))
	assert.Equal(t, 1.0, Scale(-1, 1.25))
}
