package downsample

import (
	"testing"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/stretchr/testify/require"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
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

// Downsample a 4x4 stride-2 single-channel tile [0..15]; expect the
// strided subsample [0, 2, 8, 10] in the first four output slots.
func TestSingleChannelStrideTwo(t *testing.T) {
	params := testParams(t)
	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)

	f := mask.NewFactory(ctx)

	values := make([]float64, params.Slots())
	for i := 0; i < 16; i++ {
		values[i] = float64(i)
	}
	ct := ctx.Encrypt(values)

	offsets := []int{1, 6}
	require.NoError(t, ctx.LoadRotationGroup("downsample-test", offsets))

	out := Single(ctx, f, ct, Params{W: 4, Stride: 2, Level: params.MaxLevel()})
	got := ctx.Decrypt(out)

	want := []float64{0, 2, 8, 10}
	for i, w := range want {
		require.InDelta(t, w, got[i], 1e-2)
	}
	for i := 4; i < 16; i++ {
		require.InDelta(t, 0, got[i], 1e-2)
	}
}
