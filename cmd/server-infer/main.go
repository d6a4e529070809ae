// Command server-infer is the semi-honest evaluator: it loads the
// public key material a client published during key generation, the
// encoded model weights for the requested network, evaluates every
// ciphertext waiting in io/<size>/ciphertexts_upload/ against the
// network's layer plan, and writes each result to
// io/<size>/ciphertexts_download/. It never has access to the secret
// key and cannot decrypt an image or a prediction.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ldsec/lattigo/v2/ckks"
	"github.com/ldsec/lattigo/v2/rlwe"

	"ckksnn/internal/cliutil"
	"ckksnn/internal/stats"
	"ckksnn/internal/weights"
	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/driver"
	"ckksnn/pkg/paramset"
	"ckksnn/pkg/plan"
	"ckksnn/pkg/serialization"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("server-infer", flag.ContinueOnError)
	weightsDir := fs.String("weights", "", "directory of per-layer weight/bias CSV files")
	cacheFlag := fs.String("weights-cache", "", "path to a gob cache of already-encoded weights (default: <weights>/encoded.gob)")
	flags, err := cliutil.Parse(fs, args)
	if err != nil {
		log.Printf("server-infer: %v", err)
		return cliutil.ExitCode(err)
	}
	if *weightsDir == "" {
		log.Print("server-infer: --weights is required")
		return cliutil.ExitConfig
	}
	cachePath := *cacheFlag
	if cachePath == "" {
		cachePath = filepath.Join(*weightsDir, "encoded.gob")
	}

	net, err := plan.Named(string(flags.Network))
	if err != nil {
		log.Printf("server-infer: %v", err)
		return cliutil.ExitConfig
	}

	paths := cliutil.NewPaths(flags)
	ctx, err := buildServerContext(paths, net)
	if err != nil {
		log.Print(err)
		return cliutil.ExitBackend
	}

	sw, err := loadWeights(cachePath, *weightsDir, ctx, net)
	if err != nil {
		log.Print(err)
		return cliutil.ExitBackend
	}

	if err := cliutil.EnsureDir(filepath.Dir(paths.CiphertextDownloadPath(0))); err != nil {
		log.Print(err)
		return cliutil.ExitIO
	}

	batch := flags.Size.BatchSize()
	var report stats.Report
	start := time.Now()
	err = evaluateBatch(ctx, net, sw, batch, paths, &report)
	report.Total.Add(time.Since(start))
	if err != nil {
		log.Printf("server-infer: %v", err)
		return cliutil.ExitBackend
	}

	fmt.Printf("server-infer: evaluated %d images for network=%s size=%s\n%s", batch, flags.Network, flags.Size, report.Summary())
	return cliutil.ExitOK
}

// evaluateBatch runs one image per worker goroutine, each bound to its
// own Context cloned from ctx so no lock is needed on the evaluator's
// per-layer rotation-group state, matching the "independent driver
// instances on separate OS threads" concurrency model. Workers are
// capped at runtime.NumCPU() so a LARGE batch doesn't spin up ten
// thousand simultaneous bootstrapper instances.
func evaluateBatch(ctx *cryptoctx.Context, net plan.Network, sw weights.StoredWeights, batch int, paths cliutil.Paths, report *stats.Report) error {
	workers := runtime.NumCPU()
	if workers > batch {
		workers = batch
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	errs := make(chan error, batch)
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerCtx := ctx.Clone()
			d := driver.New(workerCtx, weights.NewSource(sw))
			for i := range jobs {
				errs <- evaluateOne(d, net, paths, i, report, &mu)
			}
		}()
	}

	for i := 0; i < batch; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func evaluateOne(d *driver.Driver, net plan.Network, paths cliutil.Paths, i int, report *stats.Report, mu *sync.Mutex) error {
	in, err := readCiphertext(paths.CiphertextUploadPath(i))
	if err != nil {
		return err
	}

	evalStart := time.Now()
	out, err := d.Run(net, in)
	elapsed := time.Since(evalStart)
	if err != nil {
		return fmt.Errorf("evaluating image %d: %w", i, err)
	}
	mu.Lock()
	report.Evaluation.Add(elapsed)
	mu.Unlock()

	data, err := serialization.SerializeCiphertext(out)
	if err != nil {
		return fmt.Errorf("serializing result %d: %w", i, err)
	}
	if err := os.WriteFile(paths.CiphertextDownloadPath(i), data, 0o644); err != nil {
		return fmt.Errorf("writing result %d: %w", i, err)
	}
	return nil
}

// buildServerContext loads the crypto parameters, public key,
// relinearization key, every rotation-key group net.RotGroups names, and
// (if net has any bootstrap layer) the bootstrapping evaluation keys.
func buildServerContext(paths cliutil.Paths, net plan.Network) (*cryptoctx.Context, error) {
	ccBytes, err := os.ReadFile(paths.CryptoContextPath())
	if err != nil {
		return nil, fmt.Errorf("server-infer: reading crypto context: %w", err)
	}
	params, err := serialization.DeserializeParameters(ccBytes)
	if err != nil {
		return nil, fmt.Errorf("server-infer: %w", err)
	}

	pk, err := readPublicKey(paths.PublicKeyPath())
	if err != nil {
		return nil, err
	}
	rlk, err := readRelinKey(paths.RelinKeyPath())
	if err != nil {
		return nil, err
	}

	ctx, err := cryptoctx.NewServerContext(params, pk, rlk)
	if err != nil {
		return nil, fmt.Errorf("server-infer: %w", err)
	}

	for i, name := range net.RotGroups() {
		data, err := os.ReadFile(paths.LayerRotKeyPath(i + 1))
		if err != nil {
			return nil, fmt.Errorf("server-infer: reading rotation group %q: %w", name, err)
		}
		offsets, rtks, err := serialization.DeserializeRotationKeySet(data)
		if err != nil {
			return nil, fmt.Errorf("server-infer: rotation group %q: %w", name, err)
		}
		ctx.InstallRotationGroup(name, offsets, rtks)
	}

	needsBootstrap := false
	for _, l := range net.Layers {
		if l.BootstrapBefore || l.BootstrapAfter {
			needsBootstrap = true
			break
		}
	}
	if needsBootstrap {
		data, err := os.ReadFile(paths.BootstrapKeyPath())
		if err != nil {
			return nil, fmt.Errorf("server-infer: reading bootstrap keys: %w", err)
		}
		keys, err := serialization.DeserializeBootstrapKeys(data)
		if err != nil {
			return nil, fmt.Errorf("server-infer: %w", err)
		}
		if err := ctx.InstallBootstrapper(paramset.Bootstrapping(), keys); err != nil {
			return nil, fmt.Errorf("server-infer: %w", err)
		}
	}

	return ctx, nil
}

func readPublicKey(path string) (*rlwe.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server-infer: reading public key: %w", err)
	}
	pk, err := serialization.DeserializePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("server-infer: %w", err)
	}
	return pk, nil
}

func readRelinKey(path string) (*rlwe.RelinearizationKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server-infer: reading relinearization key: %w", err)
	}
	rlk, err := serialization.DeserializeRelinearizationKey(data)
	if err != nil {
		return nil, fmt.Errorf("server-infer: %w", err)
	}
	return rlk, nil
}

func readCiphertext(path string) (*ckks.Ciphertext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	ct, err := serialization.DeserializeCiphertext(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return ct, nil
}

// convOutWidth returns the width a k×k, padding-p, stride-s convolution
// produces from a w-wide input, matching kernel.ConvGeneric's own
// pad/crop/downsample shape arithmetic so the bias broadcast below lands
// on the same tile the kernel actually writes.
func convOutWidth(w, k, padding, stride int) int {
	valid := w + 2*padding - k + 1
	if stride > 1 {
		return valid / stride
	}
	return valid
}

// loadWeights returns the encoded weights for net, reading them from
// cachePath if present and falling back to encoding the CSV files under
// weightsDir, in which case the encoded form is written to cachePath for
// the next invocation.
func loadWeights(cachePath, weightsDir string, ctx *cryptoctx.Context, net plan.Network) (weights.StoredWeights, error) {
	if sw, err := weights.LoadEncoded(cachePath); err == nil {
		return sw, nil
	}

	var sw weights.StoredWeights
	slots := ctx.Params.Slots()
	for _, l := range net.Layers {
		switch l.Kind {
		case plan.KindConv:
			cl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci, l.K)
			if err != nil {
				return weights.StoredWeights{}, err
			}
			w := weights.EncodeConv(ctx, cl, l.Level, slots, convOutWidth(l.W, l.K, l.Padding, l.Stride))
			if err := sw.PutConv(l.Name, w); err != nil {
				return weights.StoredWeights{}, err
			}

		case plan.KindConvShortcutFused:
			cl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci, 3)
			if err != nil {
				return weights.StoredWeights{}, err
			}
			w := weights.EncodeConv(ctx, cl, l.Level, slots, convOutWidth(l.W, l.K, l.Padding, l.Stride))
			if err := sw.PutConv(l.Name, w); err != nil {
				return weights.StoredWeights{}, err
			}

			scl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_shortcut_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_shortcut_bias.csv"),
				l.Co, l.Ci, 1)
			if err != nil {
				return weights.StoredWeights{}, err
			}
			sc := weights.EncodeConv(ctx, scl, l.Level, slots, convOutWidth(l.W, 1, 0, l.Stride))
			if err := sw.PutConv(l.Name+"_shortcut", sc); err != nil {
				return weights.StoredWeights{}, err
			}

		case plan.KindFC:
			fl, err := weights.LoadFCLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci)
			if err != nil {
				return weights.StoredWeights{}, err
			}
			w := weights.EncodeFC(ctx, fl, l.Level, slots)
			if err := sw.PutFC(l.Name, w); err != nil {
				return weights.StoredWeights{}, err
			}
		}
	}

	if err := weights.SaveEncoded(cachePath, sw); err != nil {
		log.Printf("server-infer: caching encoded weights: %v", err)
	}
	return sw, nil
}
