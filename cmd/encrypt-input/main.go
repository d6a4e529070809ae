// Command encrypt-input loads a batch of plaintext dataset samples
// (MNIST for mlp/lenet5, CIFAR-10 for resnet20), normalizes and encodes
// each one under the instance's public key, and writes the resulting
// ciphertexts to io/<size>/ciphertexts_upload/.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/rlwe"

	"ckksnn/internal/cliutil"
	"ckksnn/internal/dataset"
	"ckksnn/internal/stats"
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/serialization"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("encrypt-input", flag.ContinueOnError)
	dataPath := fs.String("data", "", "path to the dataset CSV file")
	flags, err := cliutil.Parse(fs, args)
	if err != nil {
		log.Printf("encrypt-input: %v", err)
		return cliutil.ExitCode(err)
	}
	if *dataPath == "" {
		log.Print("encrypt-input: --data is required")
		return cliutil.ExitConfig
	}

	paths := cliutil.NewPaths(flags)
	params, pk, rlk, err := loadClientKeys(paths)
	if err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}

	ctx, err := cryptoctx.NewServerContext(params, pk, rlk)
	if err != nil {
		log.Printf("encrypt-input: %v", err)
		return cliutil.ExitBackend
	}

	load := dataset.LoadMNIST
	if flags.Network == cliutil.NetworkResNet20 {
		load = dataset.LoadCIFAR10
	}

	batch, err := dataset.LoadBatch(flags.Size.BatchSize(), 0, func(i int) (dataset.Sample, error) {
		return load(*dataPath, i)
	})
	if err != nil {
		log.Printf("encrypt-input: %v", err)
		return cliutil.ExitIO
	}

	if err := cliutil.EnsureDir(filepath.Dir(paths.CiphertextUploadPath(0))); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}

	var encryption stats.Timer
	for i, sample := range batch {
		var ct *ckks.Ciphertext
		encryption.Track(func() error {
			ct = ctx.Encrypt(sample.Input)
			return nil
		})
		data, err := serialization.SerializeCiphertext(ct)
		if err != nil {
			log.Printf("encrypt-input: serializing image %d: %v", i, err)
			return cliutil.ExitIO
		}
		if err := os.WriteFile(paths.CiphertextUploadPath(i), data, 0o644); err != nil {
			log.Printf("encrypt-input: writing image %d: %v", i, err)
			return cliutil.ExitIO
		}
	}

	fmt.Printf("encrypt-input: encrypted %d images for network=%s size=%s\n%s", len(batch), flags.Network, flags.Size, encryption.String())
	return cliutil.ExitOK
}

// loadClientKeys reads the crypto context, public key and relinearization
// key the client published during key generation. encrypt-input never
// multiplies ciphertexts itself, but cryptoctx.NewServerContext requires a
// relinearization key on every server-side context since the driver it
// later hands ciphertexts to does.
func loadClientKeys(paths cliutil.Paths) (params ckks.Parameters, pk *rlwe.PublicKey, rlk *rlwe.RelinearizationKey, err error) {
	ccBytes, err := os.ReadFile(paths.CryptoContextPath())
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: reading crypto context: %w", err)
	}
	params, err = serialization.DeserializeParameters(ccBytes)
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: %w", err)
	}

	pkBytes, err := os.ReadFile(paths.PublicKeyPath())
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: reading public key: %w", err)
	}
	pk, err = serialization.DeserializePublicKey(pkBytes)
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: %w", err)
	}

	rlkBytes, err := os.ReadFile(paths.RelinKeyPath())
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: reading relinearization key: %w", err)
	}
	rlk, err = serialization.DeserializeRelinearizationKey(rlkBytes)
	if err != nil {
		return params, pk, rlk, fmt.Errorf("encrypt-input: %w", err)
	}
	return params, pk, rlk, nil
}
