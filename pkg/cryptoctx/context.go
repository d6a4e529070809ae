// Package cryptoctx is the Crypto Context Facade: a thin wrapper that
// owns the CKKS handle (parameters, keys, encoder, encryptor, decryptor,
// evaluator) and exposes exactly the primitives the tensor evaluator
// needs — encode, encrypt, decrypt, rotation-key group management, and
// bootstrap — without exposing lattigo's finer-grained API surface to
// the rest of the module.
//
// Everything below this package is out of the evaluator's concern per
// the spec: key generation, encode/decode, encrypt/decrypt, slotwise
// add/multiply, rotation, bootstrap and serialization are all delegated
// to github.com/ldsec/lattigo/v2.
package cryptoctx

import (
	"fmt"
	"sync"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/ckks/bootstrapping"
	"github.com/ldsec/lattigo/v2/rlwe"
)

// Ciphertext and Plaintext are re-exported so callers never import
// lattigo directly.
type Ciphertext = ckks.Ciphertext
type Plaintext = ckks.Plaintext

// Context owns one party's CKKS key material and the shared evaluator
// state (currently-loaded rotation-key group). It is not safe for
// concurrent use by multiple goroutines evaluating different images —
// see the package doc on Driver for the intended concurrency model.
type Context struct {
	Params ckks.Parameters

	kgen ckks.KeyGenerator
	sk   *rlwe.SecretKey
	pk   *rlwe.PublicKey
	rlk  *rlwe.RelinearizationKey

	encoder   ckks.Encoder
	encryptor ckks.Encryptor
	decryptor ckks.Decryptor // nil on a key-less (server) context
	evaluator ckks.Evaluator

	mu           sync.Mutex
	activeGroup  string
	groupOffsets map[string][]int
	rotKeys      map[string]*rlwe.RotationKeySet

	btp       *bootstrapping.Bootstrapper
	btpParams *bootstrapping.Parameters
	btpKeys   *bootstrapping.EvaluationKeys
}

// NewClientContext builds a Context that owns a fresh secret/public
// keypair and relinearization key, suitable for the encrypting client.
func NewClientContext(params ckks.Parameters) (*Context, error) {
	kgen := ckks.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPair()
	rlk := kgen.GenRelinearizationKey(sk, 2)

	c := &Context{
		Params:       params,
		kgen:         kgen,
		sk:           sk,
		pk:           pk,
		rlk:          rlk,
		encoder:      ckks.NewEncoder(params),
		encryptor:    ckks.NewEncryptorFromPk(params, pk),
		decryptor:    ckks.NewDecryptor(params, sk),
		groupOffsets: make(map[string][]int),
		rotKeys:      make(map[string]*rlwe.RotationKeySet),
	}
	c.rebuildEvaluator(nil)
	return c, nil
}

// NewClientContextFromKey rebuilds a Context around a secret key read
// back from disk, for a process (decrypt-output) that only needs to
// decrypt and never re-generates key material. The public key and
// relinearization key are re-derived from sk since only the secret key
// is persisted client-side.
func NewClientContextFromKey(params ckks.Parameters, sk *rlwe.SecretKey) (*Context, error) {
	kgen := ckks.NewKeyGenerator(params)
	pk := kgen.GenPublicKey(sk)
	rlk := kgen.GenRelinearizationKey(sk, 2)

	c := &Context{
		Params:       params,
		kgen:         kgen,
		sk:           sk,
		pk:           pk,
		rlk:          rlk,
		encoder:      ckks.NewEncoder(params),
		encryptor:    ckks.NewEncryptorFromPk(params, pk),
		decryptor:    ckks.NewDecryptor(params, sk),
		groupOffsets: make(map[string][]int),
		rotKeys:      make(map[string]*rlwe.RotationKeySet),
	}
	c.rebuildEvaluator(nil)
	return c, nil
}

// NewServerContext builds a Context around public key material only: a
// public key and a relinearization key, with no secret key and hence no
// decryption capability. This is the semi-honest server's view.
func NewServerContext(params ckks.Parameters, pk *rlwe.PublicKey, rlk *rlwe.RelinearizationKey) (*Context, error) {
	if pk == nil || rlk == nil {
		return nil, fmt.Errorf("cryptoctx: server context requires a public key and relinearization key")
	}
	c := &Context{
		Params:       params,
		pk:           pk,
		rlk:          rlk,
		encoder:      ckks.NewEncoder(params),
		encryptor:    ckks.NewEncryptorFromPk(params, pk),
		groupOffsets: make(map[string][]int),
		rotKeys:      make(map[string]*rlwe.RotationKeySet),
	}
	c.rebuildEvaluator(nil)
	return c, nil
}

// Clone returns a new Context sharing the same immutable key material
// (sk/pk/rlk, params) and the already-loaded rotation-key groups — never
// mutated again after key loading finishes — but with its own evaluator
// and its own activeGroup/mutex, so it can be handed to an independent
// driver goroutine without racing on the active-group switch. A
// bootstrapper, if installed, is rebuilt from the same evaluation keys
// rather than shared, since lattigo's Bootstrapper holds working state
// that isn't safe for concurrent use by two goroutines. This realizes
// §5's "bind each driver instance to its own cloned context" guidance:
// callers MUST finish loading every rotation group and installing a
// bootstrapper before the first Clone, since a group loaded on one
// clone after that point is invisible to the others.
func (c *Context) Clone() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := &Context{
		Params:       c.Params,
		kgen:         c.kgen,
		sk:           c.sk,
		pk:           c.pk,
		rlk:          c.rlk,
		encoder:      ckks.NewEncoder(c.Params),
		encryptor:    ckks.NewEncryptorFromPk(c.Params, c.pk),
		groupOffsets: c.groupOffsets,
		rotKeys:      c.rotKeys,
	}
	if c.sk != nil {
		clone.decryptor = ckks.NewDecryptor(c.Params, c.sk)
	}
	if c.btp != nil && c.btpParams != nil && c.btpKeys != nil {
		btp, err := bootstrapping.NewBootstrapper(clone.Params, *c.btpParams, *c.btpKeys)
		if err == nil {
			clone.btp = btp
			clone.btpParams = c.btpParams
			clone.btpKeys = c.btpKeys
		}
	}
	clone.rebuildEvaluator(nil)
	return clone
}

func (c *Context) rebuildEvaluator(rtks *rlwe.RotationKeySet) {
	c.evaluator = ckks.NewEvaluator(c.Params, rlwe.EvaluationKey{Rlk: c.rlk, Rtks: rtks})
}

// EvaluationKey returns the evaluation key backing the current
// evaluator, for callers (activation's Chebyshev evaluation) that need
// to pass it explicitly alongside the evaluator.
func (c *Context) EvaluationKey() *rlwe.EvaluationKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &rlwe.EvaluationKey{Rlk: c.rlk, Rtks: c.rotKeys[c.activeGroup]}
}

// Evaluator exposes the raw lattigo evaluator for packages (mask,
// downsample, kernel, activation) that need slotwise add/mul/rotate
// primitives directly. It is only valid to call rotation methods on it
// after LoadRotationGroup has loaded a group containing the offset used.
func (c *Context) Evaluator() ckks.Evaluator { return c.evaluator }

// Encoder exposes the raw lattigo encoder.
func (c *Context) Encoder() ckks.Encoder { return c.encoder }

// SecretKey returns the owned secret key, or nil for a server context.
func (c *Context) SecretKey() *rlwe.SecretKey { return c.sk }

// PublicKey returns the public key.
func (c *Context) PublicKey() *rlwe.PublicKey { return c.pk }

// RelinearizationKey returns the relinearization key.
func (c *Context) RelinearizationKey() *rlwe.RelinearizationKey { return c.rlk }

// KeyGenerator returns the key generator, valid only on a client context.
func (c *Context) KeyGenerator() ckks.KeyGenerator { return c.kgen }

// Encode encodes a slice of real values at the given level into a
// plaintext scaled by the parameters' default scale.
func (c *Context) Encode(values []float64, level int) *ckks.Plaintext {
	cplx := make([]complex128, len(values))
	for i, v := range values {
		cplx[i] = complex(v, 0)
	}
	return c.encoder.EncodeNTTAtLvlNew(level, cplx, c.Params.LogSlots())
}

// Encrypt encrypts a slice of real values at the top level.
func (c *Context) Encrypt(values []float64) *ckks.Ciphertext {
	pt := c.Encode(values, c.Params.MaxLevel())
	return c.encryptor.EncryptNew(pt)
}

// EncryptZero returns a fresh encryption of the all-zero vector at level,
// used to seed kernel accumulators that are added to ciphertexts already
// several rescales below the top level — grounded on csp.go's encryptZero
// helper, generalized to take the caller's current level since a kernel
// past the first layer never accumulates at MaxLevel.
func (c *Context) EncryptZero(level int) *ckks.Ciphertext {
	zeros := make([]float64, c.Params.Slots())
	pt := c.Encode(zeros, level)
	return c.encryptor.EncryptNew(pt)
}

// Decrypt decrypts a ciphertext to a slice of real slot values. It is a
// programming error to call this on a server context; callers should
// check SecretKey() != nil first, matching §7's "programmer errors...
// MUST NOT attempt to continue".
func (c *Context) Decrypt(ct *ckks.Ciphertext) []float64 {
	if c.decryptor == nil {
		panic("cryptoctx: Decrypt called on a context with no secret key")
	}
	pt := c.decryptor.DecryptNew(ct)
	cplx := c.encoder.Decode(pt, c.Params.LogSlots())
	out := make([]float64, len(cplx))
	for i, v := range cplx {
		out[i] = real(v)
	}
	return out
}

// LoadRotationGroup generates, with the secret key, the rotation-key set
// for a named group of offsets and makes it the active group for
// subsequent Evaluator() calls. On a server context (no secret key) it
// returns an error; keys received from the client are installed with
// InstallRotationGroup instead. Matches §4.4's "materialised
// once, loaded ... then cleared" contract.
func (c *Context) LoadRotationGroup(name string, offsets []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sk == nil {
		return fmt.Errorf("cryptoctx: cannot generate rotation keys on a server context; call InstallRotationGroup")
	}
	rtks := c.kgen.GenRotationKeysForRotations(offsets, false, c.sk)
	c.groupOffsets[name] = offsets
	c.rotKeys[name] = rtks
	c.activeGroup = name
	c.rebuildEvaluator(rtks)
	return nil
}

// InstallRotationGroup installs a rotation-key set received from the
// client (already generated) as the named active group. This is the
// server-side counterpart of LoadRotationGroup.
func (c *Context) InstallRotationGroup(name string, offsets []int, rtks *rlwe.RotationKeySet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groupOffsets[name] = offsets
	c.rotKeys[name] = rtks
	c.activeGroup = name
	c.rebuildEvaluator(rtks)
}

// ActivateRotationGroup switches the evaluator to a previously loaded
// group without regenerating it.
func (c *Context) ActivateRotationGroup(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rtks, ok := c.rotKeys[name]
	if !ok {
		return fmt.Errorf("cryptoctx: rotation group %q not loaded", name)
	}
	c.activeGroup = name
	c.rebuildEvaluator(rtks)
	return nil
}

// ClearRotationGroup drops a rotation-key group from memory, freeing the
// automorphism keys once the driver has moved past the layers that
// needed them.
func (c *Context) ClearRotationGroup(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rotKeys, name)
	delete(c.groupOffsets, name)
	if c.activeGroup == name {
		c.activeGroup = ""
		c.rebuildEvaluator(nil)
	}
}

// ActiveGroup returns the name of the currently loaded rotation-key group.
func (c *Context) ActiveGroup() string { return c.activeGroup }

// RotationKeySet returns the rotation-key set backing a loaded group, for
// callers (cmd/keygen) that need to serialize it to disk.
func (c *Context) RotationKeySet(name string) *rlwe.RotationKeySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotKeys[name]
}
