// Package rotplan computes, for each layer kind, the multiset of
// rotation offsets a kernel invocation will need, deduplicated and with
// zero dropped (a zero rotation is a no-op the evaluator never calls).
// pkg/plan unions these across a contiguous run of layers to decide
// what a rotation-key group must contain.
package rotplan

import "sort"

// dedup sorts and deduplicates offsets, dropping zero.
func dedup(offsets []int) []int {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, o := range offsets {
		if o == 0 || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	sort.Ints(out)
	return out
}

// Downsample returns the offsets a downsample.Single/Multi call at this
// (W, stride, numChannels) needs: the doubling-phase rotations, the
// row-compaction step, and (for numChannels>1) the channel-compaction
// step.
func Downsample(W, stride, numChannels int) []int {
	var offsets []int
	Wp := W / stride
	for u := 1; u < Wp; u *= 2 {
		offsets = append(offsets, u)
	}
	offsets = append(offsets, stride*W-Wp)
	if numChannels > 1 {
		offsets = append(offsets, W*W-Wp*Wp)
	}
	return dedup(offsets)
}

// padInflateOffsets returns the per-(channel,row) shift padInflate rotates
// by when spreading a W×W, Ci-channel tile out to its padded Wpad×Wpad
// position, mirroring kernel.padInflate's own source-minus-target
// computation exactly so the two never drift apart.
func padInflateOffsets(W, Ci, padding, Wpad int) []int {
	if padding == 0 {
		return nil
	}
	var offsets []int
	for c := 0; c < Ci; c++ {
		for r := 0; r < W; r++ {
			source := c*W*W + r*W
			target := c*(Wpad*Wpad-W*W) + (r+padding)*Wpad + padding
			offsets = append(offsets, source-target)
		}
	}
	return offsets
}

// cropOffsets returns the per-row shift kernel.cropToValid rotates by
// when compacting a Wpad-row-stride live square down to a contiguous
// Wvalid-row-stride tile.
func cropOffsets(Wpad, Wvalid int) []int {
	if Wvalid == Wpad {
		return nil
	}
	var offsets []int
	for r := 0; r < Wvalid; r++ {
		source := r * Wpad
		target := r * Wvalid
		offsets = append(offsets, source-target)
	}
	return offsets
}

// ConvGeneric returns the offsets a generic k×k convolution over a W×W,
// Ci-channel input with the given padding and stride needs: padInflate's
// per-row spread rotations, the k² tap-gather copies (against the padded
// Wpad=W+2*padding width), the Ci-fold input-channel sum by -Wpad², the
// crop-to-valid compaction rotations, the per-out-channel output
// placement rotations, and any downsampling offsets when stride>1.
func ConvGeneric(W, k, Ci, Co, stride, padding int) []int {
	Wpad := W + 2*padding
	var offsets []int
	offsets = append(offsets, padInflateOffsets(W, Ci, padding, Wpad)...)
	for dy := 0; dy < k; dy++ {
		for dx := 0; dx < k; dx++ {
			offsets = append(offsets, dy*Wpad+dx)
		}
	}
	offsets = append(offsets, -Wpad*Wpad)

	Wvalid := Wpad - k + 1
	offsets = append(offsets, cropOffsets(Wpad, Wvalid)...)

	Wout := Wvalid
	if stride > 1 {
		Wout = Wvalid / stride
		offsets = append(offsets, Downsample(Wvalid, stride, 1)...)
	}
	for c := 0; c < Co; c++ {
		offsets = append(offsets, -c*Wout*Wout)
	}
	return dedup(offsets)
}

// Conv3x3 returns the offsets the 3×3-optimised path needs: same
// rotation set as the generic k=3, padding=1 path, since the "fast
// rotation precompute" only changes how the nine copies are produced
// (via hoisting), not which offsets are rotated to.
func Conv3x3(W, Ci, Co, stride int) []int {
	return ConvGeneric(W, 3, Ci, Co, stride, 1)
}

// ConvShortcutFused returns the union of the main 3×3-stride-2/padding-1
// branch's offsets and the shortcut 1×1-stride-2/padding-0 branch's
// offsets.
func ConvShortcutFused(W, Ci, Co int) []int {
	main := Conv3x3(W, Ci, Co, 2)
	shortcut := ConvGeneric(W, 1, Ci, Co, 2, 0)
	return dedup(append(main, shortcut...))
}

// AvgPool returns the offsets a k×k stride-s average pool over a W×W,
// numChannels-channel input needs.
func AvgPool(W, k, stride, numChannels int) []int {
	var offsets []int
	for dy := 0; dy < k; dy++ {
		for dx := 0; dx < k; dx++ {
			offsets = append(offsets, dy*W+dx)
		}
	}
	if stride > 1 {
		offsets = append(offsets, Downsample(W, stride, numChannels)...)
	}
	return dedup(offsets)
}

// GlobalAvgPool returns the offsets the global-average-pool's
// repeated halve-and-add reduction over W² slots needs: one rotation
// per doubling step, log2(W²) of them.
func GlobalAvgPool(W int) []int {
	var offsets []int
	for step := 1; step < W*W; step *= 2 {
		offsets = append(offsets, step)
	}
	return dedup(offsets)
}

// FullyConnected returns the offsets a fully-connected layer with Ci
// inputs, Co outputs, and the backend's rotPositions merge width needs:
// the EvalSum(Ci) reduction offsets, and the group-merge rotations when
// Co exceeds rotPositions.
func FullyConnected(Ci, Co, rotPositions int) []int {
	var offsets []int
	for step := 1; step < Ci; step *= 2 {
		offsets = append(offsets, step)
	}
	if Co > rotPositions {
		numGroups := (Co + rotPositions - 1) / rotPositions
		for g := 0; g < numGroups; g++ {
			offsets = append(offsets, -g*rotPositions)
		}
	}
	return dedup(offsets)
}

// ScalarAdd returns no rotations: a residual add is a plain slotwise
// ciphertext addition once both branches share the same live layout.
func ScalarAdd() []int { return nil }

// Union merges and deduplicates several layers' offset sets into the
// rotation-key group that must be generated to cover all of them.
func Union(sets ...[]int) []int {
	var all []int
	for _, s := range sets {
		all = append(all, s...)
	}
	return dedup(all)
}
