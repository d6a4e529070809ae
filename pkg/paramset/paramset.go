// Package paramset centralizes the CKKS parameter literal and
// bootstrapping parameter choice every cmd/ binary needs to agree on,
// so a client's keygen and a server's infer run are never negotiating
// different rings. One literal is shared by all three networks; only
// the depth budget spent per network differs, which pkg/plan's
// per-layer Level bookkeeping already accounts for.
package paramset

import (
	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/ckks/bootstrapping"
)

// CKKS returns the ring/modulus chain shared by every instance size:
// LogN=16 for 128-bit security at this depth, a 13-prime chain giving
// room for the deepest plan (ResNet-20) plus one bootstrap-refresh
// headroom level.
func CKKS() (ckks.Parameters, error) {
	return ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:     16,
		LogSlots: 15,
		Q: []uint64{
			0x80000000080001, // 55-bit initial modulus
			0x2000000a0001, 0x2000000e0001, 0x1fffffc20001,
			0x200000440001, 0x200000500001, 0x200000620001,
			0x1fffff980001, 0x2000006a0001, 0x1fffff7e0001,
			0x200000860001, 0x200000a60001, 0x200000aa0001,
		},
		P: []uint64{
			0x1fffffffffe00001, 0x1fffffffffc80001,
		},
		Scale: 1 << 45,
	})
}

// Bootstrapping returns the default bootstrapping parameter set that
// matches CKKS()'s ring degree.
func Bootstrapping() bootstrapping.Parameters {
	return bootstrapping.DefaultParameters[0]
}
