package plan

import "fmt"

// Named builds one of the three supported networks by name, with the
// fixed shapes their datasets require: "mlp" (784-128-10 over MNIST
// pixels), "lenet5" (the classic 5-layer MNIST convolutional network),
// "resnet20" (the 20-layer CIFAR-10 residual network).
func Named(name string) (Network, error) {
	switch name {
	case "mlp":
		return NewMLP([]int{784, 128, 10}, 128), nil
	case "lenet5":
		return NewLeNet5(), nil
	case "resnet20":
		return NewResNet20(), nil
	default:
		return Network{}, fmt.Errorf("plan: unknown network %q", name)
	}
}
