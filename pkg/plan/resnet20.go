package plan

import (
	"fmt"

	"ckksnn/pkg/kernel"
)

// NewResNet20 builds the four-group CIFAR-10 plan: initial conv+first
// stage, stage-2, stage-3, pool+FC. Each of the nine residual blocks
// follows conv1 → ReLU → conv2 → add-shortcut → bootstrap → ReLU. When a
// block's entry level cannot cover conv1, ReLU and conv2, the block
// bootstraps before conv1; no bootstrap is placed between conv1 and its
// ReLU. Stage-transition blocks use the fused
// convolution+shortcut kernel and halve W. Every layer's declared Level is
// the ciphertext level driver.run will find at dispatch time: a 3×3,
// padding-1, stride-1 conv consumes kernel.ConvLevels(K=3,Padding=1,Stride=1)
// levels, a stage-transition's fused main branch consumes
// kernel.ConvLevels(K=3,Padding=1,Stride=2), ReLU still costs a flat 1,
// and Add is charged nothing since a bootstrap always follows it.
func NewResNet20() Network {
	const (
		groupStage1 = "resnet-stage1"
		groupStage2 = "resnet-stage2"
		groupStage3 = "resnet-stage3"
		groupHead   = "resnet-head"
	)

	conv3x3Levels := kernel.ConvLevels(kernel.ConvShape{W: 32, K: 3, Padding: 1, Stride: 1})
	transitionMainLevels := kernel.ConvLevels(kernel.ConvShape{W: 32, K: 3, Padding: 1, Stride: 2})

	var layers []Layer
	level := 12

	layers = append(layers, Layer{
		Name: "conv_init", Kind: KindConv,
		W: 32, Ci: 3, Co: 16, K: 3, Padding: 1, Stride: 1,
		Level: level, RotGroup: groupStage1,
	})
	level -= conv3x3Levels
	layers = append(layers, Layer{Name: "relu_init", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 119, N: 16 * 32 * 32, Level: level, RotGroup: groupStage1})
	level--

	stages := []struct {
		group      string
		blocks     int
		wIn, wOut  int
		cIn, cOut  int
		transition bool
	}{
		{groupStage1, 3, 32, 32, 16, 16, false},
		{groupStage2, 3, 32, 16, 16, 32, true},
		{groupStage3, 3, 16, 8, 32, 64, true},
	}

	for si, stage := range stages {
		for b := 0; b < stage.blocks; b++ {
			name := fmt.Sprintf("stage%d_block%d", si+1, b+1)
			isTransition := stage.transition && b == 0
			w, wOut, ci, co, stride := stage.wIn, stage.wIn, stage.cIn, stage.cIn, 1
			if isTransition {
				wOut, co, stride = stage.wOut, stage.cOut, 2
			} else if si > 0 || b > 0 {
				w, wOut, ci, co = stage.wOut, stage.wOut, stage.cOut, stage.cOut
			}

			if isTransition {
				transitionShape := kernel.ConvShape{W: w, K: 3, Padding: 1, Stride: stride}
				thisTransitionLevels := kernel.ConvLevels(transitionShape)
				totalBeforeAdd := thisTransitionLevels + 1 + conv3x3Levels
				bootstrapBefore := level < totalBeforeAdd
				if bootstrapBefore {
					level = 12
				}
				layers = append(layers, Layer{
					Name: name + "_conv_fused", Kind: KindConvShortcutFused,
					W: w, Ci: ci, Co: co, K: 3, Padding: 1, Stride: stride,
					StrideVariant: StrideMultiChannel,
					Level:         level, BootstrapBefore: bootstrapBefore, RotGroup: stage.group,
				})
				level -= thisTransitionLevels
				layers = append(layers, Layer{Name: name + "_relu1", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 119, N: co * wOut * wOut, Level: level, RotGroup: stage.group})
				level--
				layers = append(layers, Layer{
					Name: name + "_conv2", Kind: KindConv,
					W: wOut, Ci: co, Co: co, K: 3, Padding: 1, Stride: 1,
					Level: level, RotGroup: stage.group,
				})
				level -= conv3x3Levels
				layers = append(layers, Layer{Name: name + "_add", Kind: KindAdd, Level: level, BootstrapAfter: true, RotGroup: stage.group})
				level = 12
				layers = append(layers, Layer{Name: name + "_relu2", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 119, N: co * wOut * wOut, Level: level, RotGroup: stage.group})
				level--
				continue
			}

			totalBeforeAdd := conv3x3Levels + 1 + conv3x3Levels
			bootstrapBefore := level < totalBeforeAdd
			if bootstrapBefore {
				level = 12
			}
			layers = append(layers, Layer{
				Name: name + "_conv1", Kind: KindConv,
				W: w, Ci: ci, Co: co, K: 3, Padding: 1, Stride: 1,
				Level: level, BootstrapBefore: bootstrapBefore, RotGroup: stage.group,
			})
			level -= conv3x3Levels
			layers = append(layers, Layer{Name: name + "_relu1", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 119, N: co * w * w, Level: level, RotGroup: stage.group})
			level--
			layers = append(layers, Layer{
				Name: name + "_conv2", Kind: KindConv,
				W: wOut, Ci: co, Co: co, K: 3, Padding: 1, Stride: 1,
				Level: level, RotGroup: stage.group,
			})
			level -= conv3x3Levels
			layers = append(layers, Layer{Name: name + "_add", Kind: KindAdd, Level: level, BootstrapAfter: true, RotGroup: stage.group})
			level = 12
			layers = append(layers, Layer{Name: name + "_relu2", Kind: KindReLU, ReLUScale: 1, ReLUDeg: 119, N: co * wOut * wOut, Level: level, RotGroup: stage.group})
			level--
		}
	}

	layers = append(layers, Layer{Name: "global_pool", Kind: KindGlobalAvgPool, W: 8, Ci: 64, Level: level, RotGroup: groupHead})
	level--
	layers = append(layers, Layer{Name: "fc_out", Kind: KindFC, Ci: 64, Co: 10, RotPositions: 64, Level: level, RotGroup: groupHead})

	return Network{Name: "resnet20", Layers: layers}
}
