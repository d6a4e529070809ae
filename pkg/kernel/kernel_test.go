package kernel

import (
	"testing"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/stretchr/testify/require"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
	"ckksnn/pkg/rotplan"
)

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
		},
		P:     []uint64{0x3ffc0001, 0x3fde0001},
		Scale: 1 << 45,
	})
	require.NoError(t, err)
	return params
}

// Convolution with a 3×3 identity kernel (centre weight 1, all others
// 0), padding 1, stride 1, single channel, on a 4×4 input must return
// the input unchanged.
func TestConv3x3Identity(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)
	f := mask.NewFactory(ctx)

	values := make([]float64, params.Slots())
	for i := 0; i < 16; i++ {
		values[i] = float64(i)
	}
	ct := ctx.Encrypt(values)

	offsets := rotplan.ConvGeneric(4, 3, 1, 1, 1, 1)
	require.NoError(t, ctx.LoadRotationGroup("conv-test", offsets))

	shape := ConvShape{W: 4, Ci: 1, Co: 1, K: 3, Padding: 1, Stride: 1, Level: params.MaxLevel()}
	taps := make([]*cryptoctx.Plaintext, 9)
	for i := range taps {
		taps[i] = ctx.Encode(zeros(params.Slots()), params.MaxLevel())
	}
	taps[4] = ctx.Encode(ones(params.Slots(), 25), params.MaxLevel()) // centre tap (dy=1,dx=1)
	bias := ctx.Encode(zeros(params.Slots()), params.MaxLevel()-3)

	w := ConvWeights{Taps: [][]*cryptoctx.Plaintext{taps}, Bias: []*cryptoctx.Plaintext{bias}}
	out := ConvGeneric(ctx, f, ct, shape, w)
	got := ctx.Decrypt(out)
	for i := 0; i < 16; i++ {
		require.InDelta(t, float64(i), got[i], 5e-2)
	}
}

func zeros(n int) []float64 { return make([]float64, n) }
func ones(n int, upto int) []float64 {
	v := make([]float64, n)
	for i := 0; i < upto && i < n; i++ {
		v[i] = 1
	}
	return v
}

// Average pool 2×2 stride 2 over a 4×4 single-channel input [0..15]
// must produce [2.5, 4.5, 10.5, 12.5] in the first four output slots.
func TestAvgPool2x2(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)
	f := mask.NewFactory(ctx)

	values := make([]float64, params.Slots())
	for i := 0; i < 16; i++ {
		values[i] = float64(i)
	}
	ct := ctx.Encrypt(values)

	offsets := []int{1, 4, 5, 6}
	require.NoError(t, ctx.LoadRotationGroup("pool-test", offsets))

	out := AvgPool2x2Stride2(ctx, f, ct, PoolShape{W: 4, K: 2, Stride: 2, Level: params.MaxLevel()})
	got := ctx.Decrypt(out)

	want := []float64{2.5, 4.5, 10.5, 12.5}
	for i, w := range want {
		require.InDelta(t, w, got[i], 5e-2)
	}
}

// Fully connected on length-4 input [1,2,3,4], weight rows
// [1,0,0,0] and [0,1,0,0], bias [10,20] must produce [11,22].
func TestFCGeneric(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)
	f := mask.NewFactory(ctx)

	values := make([]float64, params.Slots())
	values[0], values[1], values[2], values[3] = 1, 2, 3, 4
	ct := ctx.Encrypt(values)

	offsets := []int{1, 2}
	require.NoError(t, ctx.LoadRotationGroup("fc-test", offsets))

	row0 := ctx.Encode(ones(params.Slots(), 1), params.MaxLevel())
	row1v := zeros(params.Slots())
	row1v[1] = 1
	row1 := ctx.Encode(row1v, params.MaxLevel())

	biasV := zeros(params.Slots())
	biasV[0], biasV[1] = 10, 20
	bias := ctx.Encode(biasV, params.MaxLevel()-2)

	shape := FCShape{Ci: 4, Co: 2, RotPositions: 8, Level: params.MaxLevel()}
	w := FCWeights{Rows: []*cryptoctx.Plaintext{row0, row1}, Bias: bias}

	out := FCGeneric(ctx, f, ct, shape, w)
	got := ctx.Decrypt(out)
	require.InDelta(t, 11.0, got[0], 5e-2)
	require.InDelta(t, 22.0, got[1], 5e-2)
}
