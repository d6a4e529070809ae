package plan

import (
	"fmt"

	"ckksnn/pkg/kernel"
)

// NewMLP builds the single Chebyshev-friendly linear stack contract: no
// bootstrap, one rotation-key group sufficient for an EvalSum over the
// full input slot count. layerSizes lists every layer's width including
// the input width, e.g. [784, 128, 10] for one hidden layer. Every FC
// layer's declared Level drops by kernel.FCLevels — the weight-multiply
// rescale and the slot-pick rescale — matching FCGeneric/FCOptimised
// exactly; ReLU still costs a flat 1.
func NewMLP(layerSizes []int, rotPositions int) Network {
	if len(layerSizes) < 2 {
		panic("plan: NewMLP requires at least an input and an output width")
	}
	const group = "mlp"
	level := 12

	var layers []Layer
	for i := 0; i+1 < len(layerSizes); i++ {
		ci, co := layerSizes[i], layerSizes[i+1]
		layers = append(layers, Layer{
			Name:         layerName("fc", i+1),
			Kind:         KindFC,
			Ci:           ci,
			Co:           co,
			RotPositions: rotPositions,
			Level:        level,
			RotGroup:     group,
		})
		level -= kernel.FCLevels
		if i+2 < len(layerSizes) {
			layers = append(layers, Layer{
				Name:      layerName("relu", i+1),
				Kind:      KindReLU,
				ReLUScale: 1,
				ReLUDeg:   59,
				N:         co,
				Level:     level,
				RotGroup:  group,
			})
			level--
		}
	}
	return Network{Name: "mlp", Layers: layers}
}

func layerName(prefix string, n int) string {
	return fmt.Sprintf("%s%d", prefix, n)
}
