// Package plan holds the declarative per-network layer table spec's
// design notes call for: a list of layer descriptors plus a small
// interpreter (pkg/driver) instead of interleaving bootstrap decisions
// with driver control flow. Static analysis of a Plan's Level fields
// can verify the (W, C, level) invariant before any ciphertext is
// touched.
package plan

// Kind identifies which kernel a layer invokes.
type Kind int

const (
	KindConv Kind = iota
	KindConvShortcutFused
	KindAvgPool
	KindGlobalAvgPool
	KindFC
	KindReLU
	KindAdd // merges the pending shortcut ciphertext into the main branch
	KindBootstrap
)

// StrideVariant resolves spec §9's "striding variants" open question:
// a static enum selected per call site in a network's table, never a
// runtime string dispatch.
type StrideVariant int

const (
	StrideBasic StrideVariant = iota
	StrideSingleChannel
	StrideMultiChannel
)

// Layer is one entry in a network's plan.
type Layer struct {
	Name string
	Kind Kind

	// Shape parameters, interpreted per Kind.
	W, Ci, Co     int
	K, Padding    int
	Stride        int
	StrideVariant StrideVariant
	RotPositions  int

	// ReLU parameters (KindReLU only). N is the number of live slots the
	// pre-scale mask covers; the caller who assembles the table knows the
	// preceding layer's output width and must supply it explicitly since
	// the driver has no independent way to recover it from Level alone.
	ReLUScale float64
	ReLUDeg   int
	N         int

	// Level bookkeeping: the level this layer expects on entry, asserted
	// by the driver before dispatch.
	Level int

	// Bootstrap flags.
	BootstrapBefore bool
	BootstrapAfter  bool

	// RotGroup names the rotation-key group active while this layer runs;
	// the driver switches groups when it changes between consecutive
	// layers.
	RotGroup string
}

// Network is a named, ordered layer table for one target network.
type Network struct {
	Name   string
	Layers []Layer
}

// RotGroups returns the distinct, ordered rotation-key group names a
// Network's layers reference, for a caller (cmd/keygen) that needs to
// generate one key set per group.
func (n Network) RotGroups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range n.Layers {
		if l.RotGroup == "" || seen[l.RotGroup] {
			continue
		}
		seen[l.RotGroup] = true
		out = append(out, l.RotGroup)
	}
	return out
}
