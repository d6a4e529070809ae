package kernel

import (
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
)

// FCLevels is the number of levels both FCGeneric and FCOptimised consume:
// the weight-multiply rescale and the slot-pick rescale. evalSum's
// rotate-and-add doubling costs no rescale of its own.
const FCLevels = 2

// FCShape describes one fully-connected invocation.
type FCShape struct {
	Ci, Co       int
	RotPositions int // backend's per-group merge width
	Level        int
}

// FCWeights holds one row plaintext per output neuron plus the packed
// bias, grounded on fc1Operation's weightEncodings array.
type FCWeights struct {
	Rows []*cryptoctx.Plaintext // [Co], each Ci-wide encoded weight row
	Bias *cryptoctx.Plaintext   // packed [Co] bias, one value per output slot
}

// evalSum reduces the first n slots of ct into slot 0 via the
// halve-and-add EvalSum idiom (lattigo's InnerSumLog does this natively;
// this loop matches its rotate-then-add shape so kernel code stays
// backend-agnostic through *cryptoctx.Context).
func evalSum(ctx *cryptoctx.Context, ct *cryptoctx.Ciphertext, n int) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()
	acc := ct
	for step := 1; step < n; step *= 2 {
		rot := eval.RotateNew(acc, step)
		acc = eval.AddNew(acc, rot)
	}
	return acc
}

// FCGeneric implements spec 4.3.5's generic path: for each output
// neuron, multiply by the weight row and EvalSum(Ci) to a scalar in
// slot 0, merge rotPositions such scalars per group, rotate the group
// block into place, accumulate, then add the packed bias.
func FCGeneric(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, shape FCShape, w FCWeights) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()
	lvl := shape.Level

	scalars := make([]*cryptoctx.Ciphertext, shape.Co)
	for o := 0; o < shape.Co; o++ {
		term := eval.MulNew(ct, w.Rows[o])
		rescaleOrPanic(ctx, term)
		scalars[o] = evalSum(ctx, term, shape.Ci)
	}
	lvl--

	numGroups := (shape.Co + shape.RotPositions - 1) / shape.RotPositions
	outAcc := ctx.EncryptZero(lvl - 1)
	for g := 0; g < numGroups; g++ {
		base := g * shape.RotPositions
		end := base + shape.RotPositions
		if end > shape.Co {
			end = shape.Co
		}
		var group *cryptoctx.Ciphertext
		for o := base; o < end; o++ {
			picked := eval.MulNew(scalars[o], f.SingleSlot(o-base, lvl))
			rescaleOrPanic(ctx, picked)
			if group == nil {
				group = picked
			} else {
				group = eval.AddNew(group, picked)
			}
		}
		if g != 0 {
			group = eval.RotateNew(group, -base)
		}
		outAcc = eval.AddNew(outAcc, group)
	}

	return eval.AddNew(outAcc, w.Bias)
}

// FCOptimised skips the group rotation entirely when Co<=rotPositions:
// every scalar is merged directly into its final slot in one pass.
func FCOptimised(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, shape FCShape, w FCWeights) *cryptoctx.Ciphertext {
	if shape.Co > shape.RotPositions {
		panic("kernel: FCOptimised requires Co <= RotPositions")
	}
	eval := ctx.Evaluator()
	lvl := shape.Level

	var outAcc *cryptoctx.Ciphertext
	for o := 0; o < shape.Co; o++ {
		term := eval.MulNew(ct, w.Rows[o])
		rescaleOrPanic(ctx, term)
		scalar := evalSum(ctx, term, shape.Ci)
		picked := eval.MulNew(scalar, f.SingleSlot(o, lvl-1))
		rescaleOrPanic(ctx, picked)
		if outAcc == nil {
			outAcc = picked
		} else {
			outAcc = eval.AddNew(outAcc, picked)
		}
	}
	return eval.AddNew(outAcc, w.Bias)
}
