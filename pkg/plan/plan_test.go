package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotGroupsDedupsAndPreservesOrder(t *testing.T) {
	net := Network{Layers: []Layer{
		{Name: "conv1", RotGroup: "g1"},
		{Name: "relu1", RotGroup: "g1"},
		{Name: "conv2", RotGroup: "g2"},
		{Name: "relu2"}, // no group
		{Name: "conv3", RotGroup: "g1"},
	}}
	assert.Equal(t, []string{"g1", "g2"}, net.RotGroups())
}

func TestRotGroupsEmptyNetwork(t *testing.T) {
	assert.Empty(t, Network{}.RotGroups())
}

func TestNamedRejectsUnknownNetwork(t *testing.T) {
	_, err := Named("vgg16")
	require.Error(t, err)
}

func TestNamedBuildsAllThreeNetworks(t *testing.T) {
	for _, name := range []string{"mlp", "lenet5", "resnet20"} {
		net, err := Named(name)
		require.NoError(t, err)
		assert.Equal(t, name, net.Name)
		assert.NotEmpty(t, net.Layers)
	}
}

func TestMLPEndsInFullyConnected(t *testing.T) {
	net := NewMLP([]int{784, 128, 10}, 128)
	last := net.Layers[len(net.Layers)-1]
	assert.Equal(t, KindFC, last.Kind)
	assert.Equal(t, 10, last.Co)
}

func TestMLPSingleRotationGroup(t *testing.T) {
	net := NewMLP([]int{784, 128, 10}, 128)
	assert.Equal(t, []string{"mlp"}, net.RotGroups())
}

func TestMLPRequiresAtLeastTwoWidths(t *testing.T) {
	assert.Panics(t, func() { NewMLP([]int{784}, 128) })
}

func TestGroupOffsetsUnionsPerLayerOffsets(t *testing.T) {
	net := NewMLP([]int{784, 128, 10}, 128)
	groups := GroupOffsets(net)
	require.Contains(t, groups, "mlp")
	assert.NotEmpty(t, groups["mlp"])
}

func TestLeNet5HasThreeGroupsAndEndsInFC(t *testing.T) {
	net := NewLeNet5()
	last := net.Layers[len(net.Layers)-1]
	assert.Equal(t, KindFC, last.Kind)
	assert.Len(t, net.RotGroups(), 3)
}

func TestResNet20HasFourGroupsAndUsesFusedShortcuts(t *testing.T) {
	net := NewResNet20()
	assert.Len(t, net.RotGroups(), 4)

	sawFused := false
	for _, l := range net.Layers {
		if l.Kind == KindConvShortcutFused {
			sawFused = true
			break
		}
	}
	assert.True(t, sawFused, "resnet20 must use at least one fused conv+shortcut layer at a stage transition")
}
