// Package activation implements the non-linear layer: a Chebyshev
// polynomial approximation of ReLU on [-1,1] with input pre-scaling.
//
// The teacher's Paterson-Stockmeyer polynomial evaluator
// (EvalPolynomialPS, PowerBasis, EvalSign/EvalF3/EvalF4/EvalLogistic
// built on top of it) approximated sign and logistic functions by
// iterating a fixed low-degree polynomial — a technique this network's
// simple single ReLU-per-activation-site doesn't need. lattigo's own
// ckks.Approximate/EvaluateCheby already perform Paterson-Stockmeyer
// evaluation of a Chebyshev basis internally, so this package calls
// directly into that instead of re-deriving the splitting logic by hand.
package activation

import (
	"fmt"

	"github.com/ldsec/lattigo/v2/ckks"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
)

// scaledReLU is the target function the Chebyshev fit approximates:
// zero for negative inputs, scale*x for non-negative ones.
func scaledReLU(scale float64) func(complex128) complex128 {
	return func(x complex128) complex128 {
		if real(x) < 0 {
			return 0
		}
		return complex(scale*real(x), 0)
	}
}

// ReLU implements relu(C, scale, n, deg): if scale>1, pre-scale so
// inputs land in [-1,1] via scale_mask(scale, n), then evaluate the
// degree-deg Chebyshev approximation of scaled ReLU on [-1,1]. deg is
// 59 for 11-level networks, 119 for the deeper ResNet plan, chosen by
// the caller's network plan.
func ReLU(ctx *cryptoctx.Context, f *mask.Factory, ct *cryptoctx.Ciphertext, scale float64, n, deg, level int) *cryptoctx.Ciphertext {
	eval := ctx.Evaluator()

	work := ct
	if scale > 1 {
		work = eval.MulNew(work, f.ScaleMask(scale, n, level))
		if err := eval.Rescale(work, ctx.Params.Scale(), work); err != nil {
			panic(fmt.Sprintf("activation: rescale before Chebyshev fit failed: %v", err))
		}
	}

	cheby := ckks.Approximate(scaledReLU(scale), complex(-1, 0), complex(1, 0), deg)
	out := eval.EvaluateCheby(work, cheby, ctx.EvaluationKey())
	return out
}
