// Package driver interprets a plan.Network against a live
// cryptoctx.Context, dispatching each layer to the matching pkg/kernel
// or pkg/activation call and threading level/rotation-group bookkeeping
// between them. Panics raised inside pkg/kernel, pkg/mask, or
// pkg/downsample on a violated invariant (a shape mismatch, a missing
// rotation offset) are only ever recovered here, at Run's single
// boundary, and turned into a returned error carrying the original
// message — matching the "panic deep, recover once" convention the
// rest of this module follows for programmer errors.
//
// A Driver is not safe for concurrent use on a shared cryptoctx.Context:
// Run switches the context's active rotation-key group layer by layer,
// so each goroutine needs its own Driver over its own Context
// (cmd/server-infer gives every worker a ctx.Clone()).
package driver

import (
	"fmt"

	"ckksnn/pkg/activation"
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/kernel"
	"ckksnn/pkg/mask"
	"ckksnn/pkg/plan"
)

// WeightSource supplies the pre-encoded plaintext weights a layer needs,
// keyed by the layer's Name. Callers (cmd/server-infer) implement this
// against whatever on-disk weight format internal/weights loads.
type WeightSource interface {
	ConvWeights(layerName string) kernel.ConvWeights
	ShortcutWeights(layerName string) kernel.ConvWeights
	FCWeights(layerName string) kernel.FCWeights
}

// Driver walks one plan.Network's layers against a Context that already
// has every rotation-key group the network needs loaded (see
// plan.Network.RotGroups) and a bootstrapper installed if any layer sets
// BootstrapBefore/BootstrapAfter.
type Driver struct {
	Ctx     *cryptoctx.Context
	Masks   *mask.Factory
	Weights WeightSource
}

// New builds a Driver bound to ctx and its mask factory.
func New(ctx *cryptoctx.Context, weights WeightSource) *Driver {
	return &Driver{Ctx: ctx, Masks: mask.NewFactory(ctx), Weights: weights}
}

// Run evaluates net against input and returns the network's output
// ciphertext, or a non-nil error if any layer's invariant was violated.
func (d *Driver) Run(net plan.Network, input *cryptoctx.Ciphertext) (out *cryptoctx.Ciphertext, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("driver: %s: %v", net.Name, r)
		}
	}()
	return d.run(net, input), nil
}

func (d *Driver) run(net plan.Network, input *cryptoctx.Ciphertext) *cryptoctx.Ciphertext {
	cur := input
	var pendingShortcut *cryptoctx.Ciphertext
	activeGroup := ""

	for _, layer := range net.Layers {
		if layer.RotGroup != "" && layer.RotGroup != activeGroup {
			if err := d.Ctx.ActivateRotationGroup(layer.RotGroup); err != nil {
				panic(fmt.Sprintf("layer %s: %v", layer.Name, err))
			}
			activeGroup = layer.RotGroup
		}

		if layer.BootstrapBefore {
			refreshed, err := d.Ctx.Bootstrap(cur, cur.Level())
			if err != nil {
				panic(fmt.Sprintf("layer %s: bootstrap before: %v", layer.Name, err))
			}
			cur = refreshed
		}

		if cur.Level() != layer.Level {
			panic(fmt.Sprintf("layer %s: expected incoming level %d, got %d", layer.Name, layer.Level, cur.Level()))
		}

		cur = d.dispatch(layer, cur, &pendingShortcut)

		if layer.BootstrapAfter {
			refreshed, err := d.Ctx.Bootstrap(cur, cur.Level())
			if err != nil {
				panic(fmt.Sprintf("layer %s: bootstrap after: %v", layer.Name, err))
			}
			cur = refreshed
		}
	}
	return cur
}

func (d *Driver) dispatch(layer plan.Layer, cur *cryptoctx.Ciphertext, pendingShortcut **cryptoctx.Ciphertext) *cryptoctx.Ciphertext {
	switch layer.Kind {
	case plan.KindConv:
		shape := kernel.ConvShape{W: layer.W, Ci: layer.Ci, Co: layer.Co, K: layer.K, Padding: layer.Padding, Stride: layer.Stride, Level: layer.Level}
		w := d.Weights.ConvWeights(layer.Name)
		if layer.K == 3 && layer.Padding == 1 && layer.Stride == 1 {
			return kernel.Conv3x3(d.Ctx, d.Masks, cur, shape, w)
		}
		return kernel.ConvGeneric(d.Ctx, d.Masks, cur, shape, w)

	case plan.KindConvShortcutFused:
		mainShape := kernel.ConvShape{W: layer.W, Ci: layer.Ci, Co: layer.Co, K: 3, Padding: 1, Stride: layer.Stride, Level: layer.Level}
		shortcutShape := kernel.ConvShape{W: layer.W, Ci: layer.Ci, Co: layer.Co, K: 1, Padding: 0, Stride: layer.Stride, Level: layer.Level}
		mainW := d.Weights.ConvWeights(layer.Name)
		shortcutW := d.Weights.ShortcutWeights(layer.Name)
		result := kernel.ConvShortcutFused(d.Ctx, d.Masks, cur, mainShape, mainW, shortcutShape, shortcutW)
		*pendingShortcut = result.Shortcut
		return result.Main

	case plan.KindAdd:
		if *pendingShortcut == nil {
			panic(fmt.Sprintf("layer %s: add with no pending shortcut branch", layer.Name))
		}
		sum := kernel.Add(d.Ctx, cur, *pendingShortcut)
		*pendingShortcut = nil
		return sum

	case plan.KindAvgPool:
		shape := kernel.PoolShape{W: layer.W, NumChannels: layer.Ci, K: layer.K, Stride: layer.Stride, Level: layer.Level}
		if layer.K == 2 && layer.Stride == 2 {
			return kernel.AvgPool2x2Stride2(d.Ctx, d.Masks, cur, shape)
		}
		return kernel.AvgPoolGeneric(d.Ctx, d.Masks, cur, shape)

	case plan.KindGlobalAvgPool:
		if layer.Ci > 1 {
			return kernel.GlobalAvgPoolMulti(d.Ctx, d.Masks, cur, layer.W, layer.Ci, layer.Level)
		}
		return kernel.GlobalAvgPool(d.Ctx, d.Masks, cur, layer.W, layer.Level)

	case plan.KindFC:
		shape := kernel.FCShape{Ci: layer.Ci, Co: layer.Co, RotPositions: layer.RotPositions, Level: layer.Level}
		w := d.Weights.FCWeights(layer.Name)
		if layer.Co <= layer.RotPositions {
			return kernel.FCOptimised(d.Ctx, d.Masks, cur, shape, w)
		}
		return kernel.FCGeneric(d.Ctx, d.Masks, cur, shape, w)

	case plan.KindReLU:
		return activation.ReLU(d.Ctx, d.Masks, cur, layer.ReLUScale, layer.N, layer.ReLUDeg, layer.Level)

	case plan.KindBootstrap:
		refreshed, err := d.Ctx.Bootstrap(cur, layer.Level)
		if err != nil {
			panic(fmt.Sprintf("layer %s: %v", layer.Name, err))
		}
		return refreshed

	default:
		panic(fmt.Sprintf("layer %s: unknown layer kind %v", layer.Name, layer.Kind))
	}
}
