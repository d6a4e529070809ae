// Command fit-scales is the offline calibration step: it runs a
// network's plaintext reference evaluator over a sample dataset,
// observes each ReLU site's pre-activation range, and prints the
// scale_mask factor pkg/activation's Chebyshev fit needs for that site.
// It never touches a ciphertext or a crypto context — a semi-honest
// server has no way to run this itself, since that would require
// decrypting a client's data to measure it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"ckksnn/internal/cliutil"
	"ckksnn/internal/dataset"
	"ckksnn/internal/plainref"
	"ckksnn/internal/scalefit"
	"ckksnn/internal/weights"
	"ckksnn/pkg/plan"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fit-scales", flag.ContinueOnError)
	dataPath := fs.String("data", "", "path to the dataset CSV file")
	weightsDir := fs.String("weights", "", "directory of per-layer weight/bias CSV files")
	samples := fs.Int("samples", 100, "number of dataset rows to probe")
	margin := fs.Float64("margin", 1.25, "safety margin multiplied onto each observed bound")
	flags, err := cliutil.Parse(fs, args)
	if err != nil {
		log.Printf("fit-scales: %v", err)
		return cliutil.ExitCode(err)
	}
	if *dataPath == "" || *weightsDir == "" {
		log.Print("fit-scales: --data and --weights are required")
		return cliutil.ExitConfig
	}

	net, err := plan.Named(string(flags.Network))
	if err != nil {
		log.Printf("fit-scales: %v", err)
		return cliutil.ExitConfig
	}

	load := dataset.LoadMNIST
	inputC, inputW := 1, 28
	if flags.Network == cliutil.NetworkResNet20 {
		load = dataset.LoadCIFAR10
		inputC, inputW = 3, 32
	}
	if flags.Network == cliutil.NetworkMLP {
		inputC, inputW = 1, 28 // MLP flattens 784 pixels; treated as a 1x1x784 tensor below
	}

	ev, err := newEvaluator(net, *weightsDir)
	if err != nil {
		log.Print(err)
		return cliutil.ExitBackend
	}

	var probes []scalefit.Sample
	for i := 0; i < *samples; i++ {
		s, err := load(*dataPath, i)
		if err != nil {
			log.Printf("fit-scales: %v", err)
			return cliutil.ExitIO
		}
		var in plainref.Tensor
		if flags.Network == cliutil.NetworkMLP {
			in = plainref.Tensor{C: 1, H: 1, W: len(s.Input), Data: s.Input}
		} else {
			in = plainref.Tensor{C: inputC, H: inputW, W: inputW, Data: s.Input}
		}
		probes = append(probes, ev.run(in)...)
	}

	ranges := scalefit.Observe(probes)
	for _, r := range ranges {
		fmt.Printf("%s\tbound=%.6f\tscale=%.6f\n", r.LayerName, r.Bound, scalefit.Scale(r.Bound, *margin))
	}
	return cliutil.ExitOK
}

// evaluator walks a plan.Network's layer table against plainref's
// float64 kernels, matching pkg/driver's dispatch but without any
// crypto context.
type evaluator struct {
	net  plan.Network
	conv map[string]plainref.ConvWeights
	fc   map[string]plainref.FCWeights
}

func newEvaluator(net plan.Network, weightsDir string) (*evaluator, error) {
	ev := &evaluator{net: net, conv: make(map[string]plainref.ConvWeights), fc: make(map[string]plainref.FCWeights)}
	for _, l := range net.Layers {
		switch l.Kind {
		case plan.KindConv:
			cl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci, l.K)
			if err != nil {
				return nil, err
			}
			ev.conv[l.Name] = plainref.ConvWeights{Co: cl.Co, Ci: cl.Ci, K: cl.K, Taps: cl.Weights, Bias: cl.Bias}

		case plan.KindConvShortcutFused:
			cl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci, 3)
			if err != nil {
				return nil, err
			}
			ev.conv[l.Name] = plainref.ConvWeights{Co: cl.Co, Ci: cl.Ci, K: cl.K, Taps: cl.Weights, Bias: cl.Bias}

			scl, err := weights.LoadConvLayer(
				filepath.Join(weightsDir, l.Name+"_shortcut_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_shortcut_bias.csv"),
				l.Co, l.Ci, 1)
			if err != nil {
				return nil, err
			}
			ev.conv[l.Name+"_shortcut"] = plainref.ConvWeights{Co: scl.Co, Ci: scl.Ci, K: scl.K, Taps: scl.Weights, Bias: scl.Bias}

		case plan.KindFC:
			fl, err := weights.LoadFCLayer(
				filepath.Join(weightsDir, l.Name+"_weights.csv"),
				filepath.Join(weightsDir, l.Name+"_bias.csv"),
				l.Co, l.Ci)
			if err != nil {
				return nil, err
			}
			ev.fc[l.Name] = plainref.FCWeights{Co: fl.Co, Ci: fl.Ci, Weights: fl.Weights, Bias: fl.Bias}
		}
	}
	return ev, nil
}

// run evaluates the evaluator's network against one input tensor,
// returning one scalefit.Sample per ReLU site encountered. Once a
// layer flattens its tensor into a vector (the first fully-connected
// layer), later conv/pool layers cannot occur since no supported
// network interleaves them in that order.
func (ev *evaluator) run(in plainref.Tensor) []scalefit.Sample {
	cur := in
	var flat []float64
	flattened := false
	var pendingShortcut plainref.Tensor
	havePendingShortcut := false
	var samples []scalefit.Sample

	for _, l := range ev.net.Layers {
		switch l.Kind {
		case plan.KindConv:
			cur = plainref.Conv2D(cur, ev.conv[l.Name], l.Padding, l.Stride)

		case plan.KindConvShortcutFused:
			main := plainref.Conv2D(cur, ev.conv[l.Name], 1, l.Stride)
			pendingShortcut = plainref.Conv2D(cur, ev.conv[l.Name+"_shortcut"], 0, l.Stride)
			havePendingShortcut = true
			cur = main

		case plan.KindAdd:
			if !havePendingShortcut {
				panic(fmt.Sprintf("fit-scales: layer %s: add with no pending shortcut branch", l.Name))
			}
			cur = plainref.AddTensor(cur, pendingShortcut)
			havePendingShortcut = false

		case plan.KindAvgPool:
			cur = plainref.AvgPool2D(cur, l.K, l.Stride)

		case plan.KindGlobalAvgPool:
			flat = plainref.GlobalAvgPool(cur)
			flattened = true

		case plan.KindFC:
			in := flat
			if !flattened {
				in = plainref.Flatten(cur)
				flattened = true
			}
			flat = plainref.FC(in, ev.fc[l.Name])

		case plan.KindReLU:
			pre := flat
			if !flattened {
				pre = plainref.Flatten(cur)
			}
			samples = append(samples, scalefit.Sample{LayerName: l.Name, Values: append([]float64(nil), pre...)})
			if flattened {
				flat = plainref.ReLU(flat)
			} else {
				cur = plainref.ReLUTensor(cur)
			}

		case plan.KindBootstrap:
			// no-op in a plaintext reference run

		default:
			panic(fmt.Sprintf("fit-scales: layer %s: unhandled layer kind %v", l.Name, l.Kind))
		}
	}
	return samples
}
