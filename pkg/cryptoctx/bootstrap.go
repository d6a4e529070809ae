package cryptoctx

import (
	"fmt"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/ckks/bootstrapping"
)

// EnableBootstrap builds the bootstrapper for this context's parameters
// and secret key. Only a client context (one holding the secret key) can
// build a bootstrapper, since bootstrapping key generation requires the
// secret key, matching lattigo's own bootstrapping.NewBootstrapper contract.
func (c *Context) EnableBootstrap(btpParams bootstrapping.Parameters) error {
	if c.sk == nil {
		return fmt.Errorf("cryptoctx: bootstrap setup requires a secret key")
	}
	keys := bootstrapping.GenEvaluationKeys(btpParams, c.Params, c.sk)
	btp, err := bootstrapping.NewBootstrapper(c.Params, btpParams, keys)
	if err != nil {
		return fmt.Errorf("cryptoctx: failed to build bootstrapper: %w", err)
	}
	c.btp = btp
	c.btpParams = &btpParams
	c.btpKeys = &keys
	return nil
}

// BootstrapEvaluationKeys returns the evaluation keys EnableBootstrap
// generated, for keygen to persist alongside the rotation-key groups so
// a key-less server context can rebuild its own bootstrapper.
func (c *Context) BootstrapEvaluationKeys() *bootstrapping.EvaluationKeys { return c.btpKeys }

// InstallBootstrapper builds and installs a bootstrapper from evaluation
// keys generated elsewhere (on the client, whose keys are shipped to the
// server alongside the rotation-key groups) onto a key-less server context.
func (c *Context) InstallBootstrapper(btpParams bootstrapping.Parameters, keys bootstrapping.EvaluationKeys) error {
	btp, err := bootstrapping.NewBootstrapper(c.Params, btpParams, keys)
	if err != nil {
		return fmt.Errorf("cryptoctx: failed to install bootstrapper: %w", err)
	}
	c.btp = btp
	c.btpParams = &btpParams
	c.btpKeys = &keys
	return nil
}

// Bootstrap refreshes a ciphertext to the bootstrapper's target level.
// depth is accepted for symmetry with the external-interface contract in
// spec §6 (`bootstrap(Ciphertext, depth)`) but lattigo's bootstrapper is
// configured once for a fixed input/output level pair; a depth that
// doesn't match the ciphertext's actual level is a level-management
// programming error and is asserted, not silently corrected.
func (c *Context) Bootstrap(ct *ckks.Ciphertext, depth int) (*ckks.Ciphertext, error) {
	if c.btp == nil {
		return nil, fmt.Errorf("cryptoctx: bootstrap requested but no bootstrapper installed")
	}
	if ct.Level() != depth {
		panic(fmt.Sprintf("cryptoctx: bootstrap called at level %d, plan expects level %d", ct.Level(), depth))
	}
	out, err := c.btp.Bootstrap(ct)
	if err != nil {
		return nil, fmt.Errorf("cryptoctx: bootstrap failed: %w", err)
	}
	return out, nil
}

// HasBootstrapper reports whether this context can bootstrap.
func (c *Context) HasBootstrapper() bool { return c.btp != nil }
