// Package scalefit is the offline-only helper that measures each ReLU
// site's input range over a plaintext sample set and derives the
// scale_mask factor pkg/activation needs to fold that range into
// [-1,1] before the Chebyshev fit. It is invoked only by cmd/fit-scales
// against plaintext data; the production server driver never calls it,
// since a semi-honest server that could decrypt to measure a live
// ciphertext's range would defeat the confidentiality goal.
package scalefit

import "math"

// Sample is one probe of a single ReLU site's pre-activation values
// across a batch of plaintext reference runs.
type Sample struct {
	LayerName string
	Values    []float64
}

// Range is the [-bound, bound] symmetric interval a layer's
// pre-activation values were observed to fall within.
type Range struct {
	LayerName string
	Bound     float64
}

// Observe finds the largest absolute value seen for each named layer
// across every sample, forming the empirical Range each ReLU's inputs
// must be scaled into [-1,1] against.
func Observe(samples []Sample) []Range {
	bounds := make(map[string]float64)
	order := make([]string, 0)
	for _, s := range samples {
		if _, seen := bounds[s.LayerName]; !seen {
			order = append(order, s.LayerName)
		}
		for _, v := range s.Values {
			a := math.Abs(v)
			if a > bounds[s.LayerName] {
				bounds[s.LayerName] = a
			}
		}
	}
	out := make([]Range, 0, len(order))
	for _, name := range order {
		out = append(out, Range{LayerName: name, Bound: bounds[name]})
	}
	return out
}

// Scale computes the scale_mask factor for a layer's ReLU given its
// observed bound and a safety margin (>1 leaves headroom for the sample
// set not having covered the true worst case). A bound of zero (a
// constant-zero site) yields a scale of 1, since there is nothing to
// rescale.
func Scale(bound float64, margin float64) float64 {
	if bound <= 0 {
		return 1
	}
	return bound * margin
}
