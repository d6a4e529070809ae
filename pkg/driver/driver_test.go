package driver

import (
	"testing"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/stretchr/testify/require"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/kernel"
	"ckksnn/pkg/plan"
	"ckksnn/pkg/rotplan"
)

// testParams uses a 13-prime Q chain so MaxLevel()==12, matching
// pkg/plan's hardcoded top level: every plan.Network starts its layer
// table at Level 12, and driver.run now asserts the incoming ciphertext's
// real level against that declared value, so a test context with a
// shallower chain would trip the assert on layer 1 regardless of network.
func testParams(t *testing.T) ckks.Parameters {
	t.Helper()
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:     14,
		LogSlots: 13,
		Q: []uint64{
			0x7fffffffba0001,
			0x3fffffffd60001, 0x3fffffffca0001,
			0x3fffffff6d0001, 0x3fffffff5d0001,
			0x3fffffff550001, 0x3fffffff390001,
			0x3fffffff360001, 0x3fffffff2a0001,
			0x3fffffff000001, 0x3ffffffef40001,
			0x3ffffffed70001, 0x3ffffffe800001,
		},
		P:     []uint64{0x3ffc0001, 0x3fde0001},
		Scale: 1 << 45,
	})
	require.NoError(t, err)
	return params
}

// fakeWeights implements WeightSource with a single fully-connected
// layer's weights, mirroring the layout kernel_test.go's TestFCGeneric
// exercises directly.
type fakeWeights struct {
	ctx *cryptoctx.Context
	fc  kernel.FCWeights
}

func (f fakeWeights) ConvWeights(string) kernel.ConvWeights     { panic("not used by this network") }
func (f fakeWeights) ShortcutWeights(string) kernel.ConvWeights { panic("not used by this network") }
func (f fakeWeights) FCWeights(name string) kernel.FCWeights    { return f.fc }

// TestRunSingleLayerMLP exercises the driver's plumbing end to end on
// the smallest possible network: one fully-connected layer, no
// activation, no bootstrap, one rotation-key group.
func TestRunSingleLayerMLP(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)

	values := make([]float64, params.Slots())
	values[0], values[1], values[2], values[3] = 1, 2, 3, 4
	input := ctx.Encrypt(values)

	net := plan.NewMLP([]int{4, 2}, 8)
	require.Len(t, net.Layers, 1)

	offsets := rotplan.FullyConnected(4, 2, 8)
	require.NoError(t, ctx.LoadRotationGroup("mlp", offsets))

	row0 := ctx.Encode([]float64{1}, params.MaxLevel())
	row1v := make([]float64, params.Slots())
	row1v[1] = 1
	row1 := ctx.Encode(row1v, params.MaxLevel())
	biasV := make([]float64, params.Slots())
	biasV[0], biasV[1] = 10, 20
	bias := ctx.Encode(biasV, params.MaxLevel()-2)

	weights := fakeWeights{ctx: ctx, fc: kernel.FCWeights{
		Rows: []*cryptoctx.Plaintext{row0, row1},
		Bias: bias,
	}}

	d := New(ctx, weights)
	out, err := d.Run(net, input)
	require.NoError(t, err)

	got := ctx.Decrypt(out)
	require.InDelta(t, 11.0, got[0], 5e-2)
	require.InDelta(t, 22.0, got[1], 5e-2)
}

// TestRunRecoversPanicAsError checks that an invariant violation (an add
// layer reached with no pending shortcut branch queued) surfaces as an
// error from Run, not a crash.
func TestRunRecoversPanicAsError(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)

	values := make([]float64, params.Slots())
	input := ctx.Encrypt(values)

	net := plan.Network{Name: "broken", Layers: []plan.Layer{
		{Name: "stray_add", Kind: plan.KindAdd, Level: params.MaxLevel()},
	}}

	d := New(ctx, fakeWeights{ctx: ctx})
	_, err = d.Run(net, input)
	require.Error(t, err)
}
