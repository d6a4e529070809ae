package kernel

import (
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/downsample"
	"ckksnn/pkg/mask"
)

// PoolShape describes one average-pool invocation.
type PoolShape struct {
	W, NumChannels int
	K, Stride      int
	Level          int
}

// AvgPoolGeneric implements spec's 4.3.4: build k² shifted copies, sum,
// scale by 1/k², then downsample with stride s.
func AvgPoolGeneric(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, shape PoolShape) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()
	channels := shape.NumChannels
	if channels == 0 {
		channels = 1
	}

	var acc *cryptoctx.Ciphertext
	for dy := 0; dy < shape.K; dy++ {
		for dx := 0; dx < shape.K; dx++ {
			off := dy*shape.W + dx
			var shifted *cryptoctx.Ciphertext
			if off == 0 {
				shifted = ct
			} else {
				shifted = eval.RotateNew(ct, off)
			}
			if acc == nil {
				acc = shifted
			} else {
				acc = eval.AddNew(acc, shifted)
			}
		}
	}

	acc = eval.MulNew(acc, f.ScaleMask(float64(shape.K*shape.K), channels*shape.W*shape.W, shape.Level))
	rescaleOrPanic(ctx, acc)
	lvl := shape.Level - 1

	if shape.Stride > 1 {
		if channels > 1 {
			acc = downsample.Multi(ctx, f, acc, downsample.Params{W: shape.W, Stride: shape.Stride, NumChannels: channels, Level: lvl})
		} else {
			acc = downsample.Single(ctx, f, acc, downsample.Params{W: shape.W, Stride: shape.Stride, Level: lvl})
		}
	}
	return acc
}

// AvgPool2x2Stride2 is the optimised 2×2/stride-2 specialisation; it
// shares the same semantics as AvgPoolGeneric with K=2, Stride=2 and
// is the entry point pkg/driver dispatches every K=2, Stride=2 pool
// layer to, choosing it from the layer's K and Stride.
func AvgPool2x2Stride2(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, shape PoolShape) *cryptoctx.Ciphertext {
	if shape.K != 2 || shape.Stride != 2 {
		panic("kernel: AvgPool2x2Stride2 requires K=2, Stride=2")
	}
	return AvgPoolGeneric(ctx, f, ct, shape)
}

// GlobalAvgPool sums an entire W×W channel into a single slot via
// repeated halve-and-add over log2(W²) doublings, then scales by 1/W².
// One call handles one channel; the driver invokes it once per channel
// (or the multi-channel variant packs numChannels globals in parallel
// using channel-tiled masks).
func GlobalAvgPool(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, W, level int) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()
	acc := ct
	for step := 1; step < W*W; step *= 2 {
		rot := eval.RotateNew(acc, step)
		acc = eval.AddNew(acc, rot)
	}
	acc = eval.MulNew(acc, f.ScaleMask(float64(W*W), 1, level))
	rescaleOrPanic(ctx, acc)
	return acc
}

// GlobalAvgPoolMulti runs GlobalAvgPool independently within each of
// numChannels channel-tiled W×W blocks, leaving one scalar per channel
// at that channel's original tile offset.
func GlobalAvgPoolMulti(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, W, numChannels, level int) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()
	acc := ct
	for step := 1; step < W*W; step *= 2 {
		rot := eval.RotateNew(acc, step)
		acc = eval.AddNew(acc, rot)
	}
	acc = eval.MulNew(acc, f.ChannelLeadMask(W*W, numChannels, level))
	rescaleOrPanic(ctx, acc)
	scaled := eval.MulNew(acc, f.ScaleMask(float64(W*W), numChannels*W*W, level-1))
	rescaleOrPanic(ctx, scaled)
	return scaled
}
