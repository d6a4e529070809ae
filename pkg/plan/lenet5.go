package plan

import "ckksnn/pkg/kernel"

// maxLevel is the top level a fresh ciphertext (or one just refreshed by
// bootstrap) sits at, per paramset.CKKS's 13-prime Q chain.
const maxLevel = 12

// NewLeNet5 builds the three-group MNIST plan: Conv1 → ReLU → AvgPool →
// Conv2 → ReLU → bootstrap → AvgPool → FC1 → bootstrap → ReLU → FC2 →
// bootstrap → ReLU → FC3. Group swaps occur before Conv2 and before FC1.
// Every layer's declared Level is the ciphertext level driver.run will find
// at dispatch time, and level-consumed(layer) — via kernel.ConvLevels/
// kernel.FCLevels for Conv/FC, a flat 1 for ReLU/AvgPool — always lands on
// the next layer's declared Level exactly; a BootstrapBefore layer always
// declares maxLevel since the driver refreshes cur to the top level before
// dispatching it.
func NewLeNet5() Network {
	const (
		groupConv1 = "lenet-conv1"
		groupConv2 = "lenet-conv2"
		groupFC    = "lenet-fc"
	)
	conv1Levels := kernel.ConvLevels(kernel.ConvShape{W: 28, K: 5, Padding: 2, Stride: 1})
	conv2Levels := kernel.ConvLevels(kernel.ConvShape{W: 14, K: 5, Padding: 0, Stride: 1})

	level := maxLevel

	layers := []Layer{
		{
			Name: "conv1", Kind: KindConv,
			W: 28, Ci: 1, Co: 6, K: 5, Padding: 2, Stride: 1,
			Level: level, RotGroup: groupConv1,
		},
	}
	level -= conv1Levels
	layers = append(layers,
		Layer{Name: "relu1", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 59, N: 6 * 28 * 28, Level: level, RotGroup: groupConv1},
	)
	level--
	layers = append(layers,
		Layer{Name: "pool1", Kind: KindAvgPool, W: 28, Ci: 6, K: 2, Stride: 2, StrideVariant: StrideMultiChannel, Level: level, RotGroup: groupConv1},
	)
	level--

	layers = append(layers,
		Layer{Name: "conv2", Kind: KindConv, W: 14, Ci: 6, Co: 16, K: 5, Padding: 0, Stride: 1, Level: level, RotGroup: groupConv2},
	)
	level -= conv2Levels
	layers = append(layers,
		Layer{Name: "relu2", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 59, N: 16 * 10 * 10, Level: level, BootstrapAfter: true, RotGroup: groupConv2},
	)
	level = maxLevel
	layers = append(layers,
		Layer{Name: "pool2", Kind: KindAvgPool, W: 10, Ci: 16, K: 2, Stride: 2, StrideVariant: StrideMultiChannel, Level: level, RotGroup: groupConv2},
	)
	level--

	layers = append(layers,
		Layer{Name: "fc1", Kind: KindFC, Ci: 5 * 5 * 16, Co: 120, RotPositions: 512, Level: level, RotGroup: groupFC},
	)
	level = maxLevel
	layers = append(layers,
		Layer{Name: "relu3", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 59, N: 120, Level: level, BootstrapBefore: true, RotGroup: groupFC},
	)
	level--
	layers = append(layers,
		Layer{Name: "fc2", Kind: KindFC, Ci: 120, Co: 84, RotPositions: 128, Level: level, RotGroup: groupFC},
	)
	level = maxLevel
	layers = append(layers,
		Layer{Name: "relu4", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 59, N: 84, Level: level, BootstrapBefore: true, RotGroup: groupFC},
	)
	level--
	layers = append(layers,
		Layer{Name: "fc3", Kind: KindFC, Ci: 84, Co: 10, RotPositions: 128, Level: level, RotGroup: groupFC},
	)

	return Network{Name: "lenet5", Layers: layers}
}
