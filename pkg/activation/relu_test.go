package activation

import (
	"math"
	"testing"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/stretchr/testify/require"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/mask"
)

func TestReLUApproximatesOnUnitInterval(t *testing.T) {
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

	ctx, err := cryptoctx.NewClientContext(params)
	require.NoError(t, err)
	f := mask.NewFactory(ctx)

	n := 16
	values := make([]float64, params.Slots())
	for i := 0; i < n; i++ {
		values[i] = -1.0 + 2.0*float64(i)/float64(n-1)
	}
	ct := ctx.Encrypt(values)

	out := ReLU(ctx, f, ct, 1, n, 59, params.MaxLevel())
	got := ctx.Decrypt(out)

	for i := 0; i < n; i++ {
		want := math.Max(0, values[i])
		require.InDelta(t, want, got[i], 5e-2)
	}
}
