// Package downsample implements the strided subsampling of a packed
// feature-map ciphertext: given a W×W tile (or numChannels of them)
// and a stride s dividing W, it produces the s-strided W/s×W/s
// subsample compacted to the top-left of each tile.
//
// The rotate/mask/add "halve-and-fold" shape below is the same idiom
// csp.go's conv2Operation and fc1Operation use to compact strided
// partial sums into contiguous slots; here it is generalized into a
// standalone, level-accounted primitive shared by every kernel that
// needs strided output (conv with stride>1, pooling with stride>1).
package downsample

import (
	"fmt"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
)

// Params describes one downsampling call.
type Params struct {
	W           int // input tile width
	Stride      int // s; must divide W
	NumChannels int // 0 or 1 => single-channel (variant A)
	Level       int // ciphertext level entering the call
}

// Single runs variant A: one channel's W×W tile, subsampled by Stride
// and compacted into the first (W/Stride)^2 slots of that tile.
func Single(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, p Params) *cryptoctx.Ciphertext {
	return run(ctx, f, ct, Params{W: p.W, Stride: p.Stride, NumChannels: 1, Level: p.Level}, false)
}

// Multi runs variant B: numChannels channels compacted, after the row
// phase, into numChannels*(W/Stride)^2 contiguous slots.
func Multi(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, p Params) *cryptoctx.Ciphertext {
	if p.NumChannels < 1 {
		panic("downsample: Multi requires NumChannels >= 1")
	}
	return run(ctx, f, ct, p, true)
}

func run(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, p Params, compactChannels bool) *cryptoctx.Ciphertext {
	if p.W <= 0 || p.Stride <= 0 || p.W%p.Stride != 0 {
		panic(fmt.Sprintf("downsample: stride %d must divide width %d", p.Stride, p.W))
	}
	eval := ctx.Evaluator()
	Wp := p.W / p.Stride

	if p.W <= 2 {
		// Edge case per the live-region contract: no rotation trick is
		// meaningful at this size, callers are expected to merge
		// precomputed per-channel ciphertexts directly instead of
		// calling into this package.
		panic("downsample: W<=2 must be handled by the caller, not the downsampler")
	}

	rescale := func(c *cryptoctx.Ciphertext) {
		if err := eval.Rescale(c, ctx.Params.Scale(), c); err != nil {
			panic(fmt.Sprintf("downsample: rescale failed: %v", err))
		}
	}

	// Step 1: row-wise juxtaposition.
	firstMask := f.FirstMask(p.W, p.Stride, p.NumChannels, p.Level)
	work := eval.MulNew(ct, firstMask)
	rescale(work)
	lvl := p.Level - 1

	for u := 1; u < p.W/p.Stride; u *= 2 {
		rot := eval.RotateNew(work, u)
		work = eval.AddNew(work, rot)
		bm := f.BinaryMask(2*u, p.W*p.W, p.NumChannels, lvl)
		work = eval.MulNew(work, bm)
		rescale(work)
		lvl--
	}

	// Step 2: row compaction.
	tile := p.W * p.W
	channels := p.NumChannels
	if channels == 0 {
		channels = 1
	}
	acc := ctx.EncryptZero(lvl - 1)
	rowStep := p.Stride*p.W - Wp
	for r := 0; r < Wp; r++ {
		// row_mask(r, W/s) per the compaction algorithm: after r rotations
		// the r-th strided row's data has drifted to slots [r*Wp, (r+1)*Wp)
		// within each channel's original W*W block, not to its original
		// row offset — channel spacing stays tile, row width shrinks to Wp.
		rm := f.CompactRowMask(r, Wp, tile, channels, lvl)
		masked := eval.MulNew(work, rm)
		rescale(masked)
		acc = eval.AddNew(acc, masked)
		if r != Wp-1 {
			work = eval.RotateNew(work, rowStep)
		}
	}
	lvl--
	work = acc

	if !compactChannels || channels == 1 {
		return work
	}

	// Step 3: channel compaction (variant B only). Each iteration's live
	// block has already drifted to [c*Wp², (c+1)*Wp²) by the previous
	// rotation, so the mask targets that absolute offset directly rather
	// than the channel's original tile-sized slot region.
	outTile := Wp * Wp
	acc = ctx.EncryptZero(lvl - 1)
	chanStep := tile - outTile
	for c := 0; c < channels; c++ {
		cm := f.BlockMask(c*outTile, outTile, lvl)
		masked := eval.MulNew(work, cm)
		rescale(masked)
		acc = eval.AddNew(acc, masked)
		if c != channels-1 {
			work = eval.RotateNew(work, chanStep)
		}
	}
	return acc
}
