// Package mask is the Slot Mask Factory: pure, cache-backed functions
// of integer parameters and an encoding level that build the CKKS
// plaintexts used to gate slots throughout the kernel package. None of
// these functions touch keys; they are safe to call from any goroutine.
//
// Grounded on the ad hoc mask-message construction repeated at every
// call site in csp.go (conv2Operation, fc1Operation, fc2Operation each
// build a mkckks.Message by hand and encode it once), generalized here
// into named, cached constructors so the same mask is built exactly
// once per (kind, params, level) tuple, per the "must precompute and
// cache" contract on the slot mask factory.
package mask

import (
	"fmt"
	"sync"

	"ckksnn/pkg/cryptoctx"
)

type key struct {
	kind       string
	a, b, c, d int
	level      int
}

// Factory builds and caches masks for one Context's slot count.
type Factory struct {
	ctx   *cryptoctx.Context
	slots int

	mu    sync.Mutex
	cache map[key]*cryptoctx.Plaintext
}

// NewFactory returns a mask factory bound to ctx's slot count.
func NewFactory(ctx *cryptoctx.Context) *Factory {
	return &Factory{
		ctx:   ctx,
		slots: ctx.Params.Slots(),
		cache: make(map[key]*cryptoctx.Plaintext),
	}
}

func (f *Factory) get(k key, build func() []float64) *cryptoctx.Plaintext {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pt, ok := f.cache[k]; ok {
		return pt
	}
	pt := f.ctx.Encode(build(), k.level)
	f.cache[k] = pt
	return pt
}

// FirstMask returns ones at positions (i*W+j) with i%stride==0 and
// j%stride==0 within each of numChannels W*W tiles, zero elsewhere.
// numChannels==0 means "one channel, W*W slots".
func (f *Factory) FirstMask(W, stride, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "first", a: W, b: stride, c: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		tile := W * W
		channels := numChannels
		if channels == 0 {
			channels = 1
		}
		for c := 0; c < channels; c++ {
			base := c * tile
			for i := 0; i < W; i += stride {
				for j := 0; j < W; j += stride {
					v[base+i*W+j] = 1
				}
			}
		}
		return v
	})
}

// BinaryMask returns a repeating p-ones/p-zeros pattern used during the
// downsampler's doubling phase, tiled across numChannels tiles of size
// tileLen (0 => whole slot vector is one tile).
func (f *Factory) BinaryMask(p, tileLen, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "binary", a: p, b: tileLen, c: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		span := tileLen
		if span == 0 {
			span = f.slots
		}
		channels := numChannels
		if channels == 0 {
			channels = 1
		}
		for c := 0; c < channels; c++ {
			base := c * span
			for i := 0; i < span; i++ {
				if (i/p)%2 == 0 {
					v[base+i] = 1
				}
			}
		}
		return v
	})
}

// RowMask returns ones in row r of a W*W tile, optionally tiled across
// numChannels tiles (0 => single tile).
func (f *Factory) RowMask(r, W, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "row", a: r, b: W, c: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		tile := W * W
		channels := numChannels
		if channels == 0 {
			channels = 1
		}
		for c := 0; c < channels; c++ {
			base := c*tile + r*W
			for j := 0; j < W; j++ {
				v[base+j] = 1
			}
		}
		return v
	})
}

// CompactRowMask returns rowLen ones at offset r*rowLen within each
// channel's channelSpan-slot block. This is the downsampler's row_mask
// applied at the compacted row width during row compaction: the
// channel spacing stays the original per-channel span even though the
// live row data has already shrunk to rowLen columns per row.
func (f *Factory) CompactRowMask(r, rowLen, channelSpan, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "crow", a: r, b: rowLen, c: channelSpan, d: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		channels := numChannels
		if channels == 0 {
			channels = 1
		}
		for c := 0; c < channels; c++ {
			base := c*channelSpan + r*rowLen
			for j := 0; j < rowLen; j++ {
				v[base+j] = 1
			}
		}
		return v
	})
}

// ChannelMask returns ones across channel c's W*W slots.
func (f *Factory) ChannelMask(c, W, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "channel", a: c, b: W, c: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		tile := W * W
		base := c * tile
		for j := 0; j < tile; j++ {
			v[base+j] = 1
		}
		return v
	})
}

// BlockMask returns ones over the contiguous range [offset, offset+length).
// Used by the downsampler's channel-compaction phase, where each
// iteration's live data has already drifted to an absolute offset that
// no longer aligns with any per-channel tile boundary.
func (f *Factory) BlockMask(offset, length, level int) *cryptoctx.Plaintext {
	k := key{kind: "block", a: offset, b: length, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		for j := 0; j < length && offset+j < f.slots; j++ {
			v[offset+j] = 1
		}
		return v
	})
}

// ChannelLeadMask returns a single one at slot 0 of each of numChannels
// channelSpan-wide blocks, used to pick the reduced scalar out of a
// per-channel halve-and-add global-pool reduction.
func (f *Factory) ChannelLeadMask(channelSpan, numChannels, level int) *cryptoctx.Plaintext {
	k := key{kind: "clead", a: channelSpan, b: numChannels, level: level}
	return f.get(k, func() []float64 {
		v := make([]float64, f.slots)
		for c := 0; c < numChannels; c++ {
			pos := c * channelSpan
			if pos < f.slots {
				v[pos] = 1
			}
		}
		return v
	})
}

// ZeroMask returns the all-zero plaintext, used to seed accumulators
// that must be added into (rather than the identity for CopyNew).
func (f *Factory) ZeroMask(level int) *cryptoctx.Plaintext {
	k := key{kind: "zero", level: level}
	return f.get(k, func() []float64 {
		return make([]float64, f.slots)
	})
}

// ScaleMask sets the first n slots to 1/v, zero elsewhere.
func (f *Factory) ScaleMask(v float64, n, level int) *cryptoctx.Plaintext {
	if v == 0 {
		panic("mask: ScaleMask called with v=0")
	}
	// v is a float and can't live in the integer cache key directly; the
	// pooling call sites scale by integer counts (kernel areas, W²), and
	// activation.ReLU passes its scale here only when it exceeds 1. An
	// integer v round-trips through int exactly; any other v panics.
	iv := int(v)
	if float64(iv) != v {
		panic(fmt.Sprintf("mask: ScaleMask requires an integer scale, got %v", v))
	}
	k := key{kind: "scale", a: iv, b: n, level: level}
	return f.get(k, func() []float64 {
		out := make([]float64, f.slots)
		for i := 0; i < n && i < f.slots; i++ {
			out[i] = 1 / v
		}
		return out
	})
}

// MixedMask returns `ones` leading ones then zeros to length total.
func (f *Factory) MixedMask(ones, total, level int) *cryptoctx.Plaintext {
	k := key{kind: "mixed", a: ones, b: total, level: level}
	return f.get(k, func() []float64 {
		out := make([]float64, f.slots)
		for i := 0; i < ones && i < total && i < f.slots; i++ {
			out[i] = 1
		}
		return out
	})
}

// SingleSlot returns a mask with a single 1 at position idx, used by the
// fully-connected kernel to pick a scalar EvalSum result out before
// merging it into a packed output block.
func (f *Factory) SingleSlot(idx, level int) *cryptoctx.Plaintext {
	k := key{kind: "single", a: idx, level: level}
	return f.get(k, func() []float64 {
		out := make([]float64, f.slots)
		if idx < f.slots {
			out[idx] = 1
		}
		return out
	})
}
