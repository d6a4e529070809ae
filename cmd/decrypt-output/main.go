// Command decrypt-output is the client's final step: it loads the
// secret key, decrypts every result in io/<size>/ciphertexts_download/,
// reads off the first Co slots as the network's class scores, and
// writes one predicted class index per line to
// io/<size>/encrypted_model_predictions.txt.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"ckksnn/internal/cliutil"
	"ckksnn/internal/plainref"
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/plan"
	"ckksnn/pkg/serialization"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := cliutil.Parse(flag.NewFlagSet("decrypt-output", flag.ContinueOnError), args)
	if err != nil {
		log.Printf("decrypt-output: %v", err)
		return cliutil.ExitCode(err)
	}

	net, err := plan.Named(string(flags.Network))
	if err != nil {
		log.Printf("decrypt-output: %v", err)
		return cliutil.ExitConfig
	}
	numClasses := outputWidth(net)

	paths := cliutil.NewPaths(flags)
	ctx, err := loadClientContext(paths)
	if err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}

	if err := cliutil.EnsureDir(filepath.Dir(paths.PredictionsPath())); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}
	out, err := os.Create(paths.PredictionsPath())
	if err != nil {
		log.Printf("decrypt-output: creating predictions file: %v", err)
		return cliutil.ExitIO
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	batch := flags.Size.BatchSize()
	for i := 0; i < batch; i++ {
		data, err := os.ReadFile(paths.CiphertextDownloadPath(i))
		if err != nil {
			log.Printf("decrypt-output: %v", err)
			return cliutil.ExitIO
		}
		ct, err := serialization.DeserializeCiphertext(data)
		if err != nil {
			log.Printf("decrypt-output: decoding result %d: %v", i, err)
			return cliutil.ExitIO
		}
		scores := ctx.Decrypt(ct)[:numClasses]
		fmt.Fprintln(w, plainref.Argmax(scores))
	}
	if err := w.Flush(); err != nil {
		log.Printf("decrypt-output: writing predictions: %v", err)
		return cliutil.ExitIO
	}

	fmt.Printf("decrypt-output: wrote %d predictions to %s\n", batch, paths.PredictionsPath())
	return cliutil.ExitOK
}

// outputWidth returns the class count of a network's final layer, the
// number of leading slots a decrypted result's class scores occupy.
func outputWidth(net plan.Network) int {
	for i := len(net.Layers) - 1; i >= 0; i-- {
		if net.Layers[i].Kind == plan.KindFC {
			return net.Layers[i].Co
		}
	}
	panic("decrypt-output: network has no fully-connected output layer")
}

func loadClientContext(paths cliutil.Paths) (*cryptoctx.Context, error) {
	ccBytes, err := os.ReadFile(paths.CryptoContextPath())
	if err != nil {
		return nil, fmt.Errorf("decrypt-output: reading crypto context: %w", err)
	}
	params, err := serialization.DeserializeParameters(ccBytes)
	if err != nil {
		return nil, fmt.Errorf("decrypt-output: %w", err)
	}

	skBytes, err := os.ReadFile(paths.SecretKeyPath())
	if err != nil {
		return nil, fmt.Errorf("decrypt-output: reading secret key: %w", err)
	}
	sk, err := serialization.DeserializeSecretKey(skBytes)
	if err != nil {
		return nil, fmt.Errorf("decrypt-output: %w", err)
	}

	return cryptoctx.NewClientContextFromKey(params, sk)
}
