package plan

import "ckksnn/pkg/rotplan"

// layerOffsets returns the rotation offsets one layer's kernel
// invocation needs, delegating to the matching rotplan function per Kind.
func layerOffsets(l Layer) []int {
	switch l.Kind {
	case KindConv:
		return rotplan.ConvGeneric(l.W, l.K, l.Ci, l.Co, l.Stride, l.Padding)
	case KindConvShortcutFused:
		return rotplan.ConvShortcutFused(l.W, l.Ci, l.Co)
	case KindAvgPool:
		return rotplan.AvgPool(l.W, l.K, l.Stride, l.Ci)
	case KindGlobalAvgPool:
		return rotplan.GlobalAvgPool(l.W)
	case KindFC:
		return rotplan.FullyConnected(l.Ci, l.Co, l.RotPositions)
	case KindAdd:
		return rotplan.ScalarAdd()
	case KindReLU, KindBootstrap:
		return nil
	default:
		return nil
	}
}

// GroupOffsets unions, per named rotation-key group, the offsets every
// layer assigned to that group needs. cmd/keygen calls this once per
// network to know what to generate. cmd/server-infer does not call it:
// it installs the offsets stored alongside each shipped group.
func GroupOffsets(net Network) map[string][]int {
	byGroup := make(map[string][][]int)
	for _, l := range net.Layers {
		if l.RotGroup == "" {
			continue
		}
		byGroup[l.RotGroup] = append(byGroup[l.RotGroup], layerOffsets(l))
	}
	out := make(map[string][]int, len(byGroup))
	for name, sets := range byGroup {
		out[name] = rotplan.Union(sets...)
	}
	return out
}
