// Command keygen generates one instance's key material: a fresh
// secret/public keypair, a relinearization key, and one rotation-key
// group per contiguous run of layers a network's plan names, writing
// them to the io/<size>/ layout cmd/server-infer and cmd/decrypt-output
// read back from.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"ckksnn/internal/cliutil"
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/paramset"
	"ckksnn/pkg/plan"
	"ckksnn/pkg/serialization"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := cliutil.Parse(flag.NewFlagSet("keygen", flag.ContinueOnError), args)
	if err != nil {
		log.Printf("keygen: %v", err)
		return cliutil.ExitCode(err)
	}

	net, err := plan.Named(string(flags.Network))
	if err != nil {
		log.Printf("keygen: %v", err)
		return cliutil.ExitConfig
	}

	params, err := paramset.CKKS()
	if err != nil {
		log.Printf("keygen: building CKKS parameters: %v", err)
		return cliutil.ExitBackend
	}

	ctx, err := cryptoctx.NewClientContext(params)
	if err != nil {
		log.Printf("keygen: %v", err)
		return cliutil.ExitBackend
	}

	needsBootstrap := false
	for _, l := range net.Layers {
		if l.BootstrapBefore || l.BootstrapAfter {
			needsBootstrap = true
			break
		}
	}
	if needsBootstrap {
		if err := ctx.EnableBootstrap(paramset.Bootstrapping()); err != nil {
			log.Printf("keygen: enabling bootstrap: %v", err)
			return cliutil.ExitBackend
		}
	}

	paths := cliutil.NewPaths(flags)
	if err := cliutil.EnsureDir(paths.PublicKeysDir()); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	if err := cliutil.EnsureDir(filepath.Dir(paths.SecretKeyPath())); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}

	if err := writeFile(paths.CryptoContextPath(), serialization.SerializeParameters, params); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	if err := writeFile(paths.PublicKeyPath(), serialization.SerializePublicKey, ctx.PublicKey()); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	if err := writeFile(paths.RelinKeyPath(), serialization.SerializeRelinearizationKey, ctx.RelinearizationKey()); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	if err := writeFile(paths.SecretKeyPath(), serialization.SerializeSecretKey, ctx.SecretKey()); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	if needsBootstrap {
		if err := writeFile(paths.BootstrapKeyPath(), serialization.SerializeBootstrapKeys, *ctx.BootstrapEvaluationKeys()); err != nil {
			log.Print(err)
			return cliutil.ExitIO
		}
	}

	groups := plan.GroupOffsets(net)
	for i, name := range net.RotGroups() {
		offsets := groups[name]
		if err := ctx.LoadRotationGroup(name, offsets); err != nil {
			log.Printf("keygen: generating rotation group %q: %v", name, err)
			return cliutil.ExitBackend
		}
		data, err := serialization.SerializeRotationKeySet(offsets, ctx.RotationKeySet(name))
		if err != nil {
			log.Printf("keygen: serializing rotation group %q: %v", name, err)
			return cliutil.ExitIO
		}
		if err := os.WriteFile(paths.LayerRotKeyPath(i+1), data, 0o644); err != nil {
			log.Printf("keygen: writing rotation group %q: %v", name, err)
			return cliutil.ExitIO
		}
	}

	fmt.Printf("keygen: wrote keys for network=%s size=%s to %s\n", flags.Network, flags.Size, paths.PublicKeysDir())
	return cliutil.ExitOK
}

func writeFile[T any](path string, serialize func(T) ([]byte, error), v T) error {
	data, err := serialize(v)
	if err != nil {
		return fmt.Errorf("keygen: serializing %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("keygen: writing %s: %w", path, err)
	}
	return nil
}
