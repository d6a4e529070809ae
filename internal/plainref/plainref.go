// Package plainref is a plaintext floating-point reference evaluator
// for the same three networks pkg/driver runs homomorphically, used by
// cmd/fit-scales to measure per-layer activation ranges (which it hands
// to internal/scalefit) and by cmd/decrypt-output for Argmax. It computes
// exact ReLU (not the Chebyshev approximation pkg/activation evaluates
// under encryption) and plain float64 convolution/pooling/FC, matching
// the arithmetic the original PyTorch models perform before their
// weights were exported to CSV.
package plainref

import "fmt"

// Tensor is a channel-major (C, H, W) float64 feature map.
type Tensor struct {
	C, H, W int
	Data    []float64 // len C*H*W, row-major within each channel
}

// NewTensor allocates a zeroed Tensor.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

func (t Tensor) at(c, y, x int) float64 { return t.Data[(c*t.H+y)*t.W+x] }
func (t Tensor) set(c, y, x int, v float64) { t.Data[(c*t.H+y)*t.W+x] = v }

// ConvWeights holds one convolution layer's [Co][Ci][K][K] taps and
// [Co] bias, matching spec §3's CSV reshape.
type ConvWeights struct {
	Co, Ci, K int
	Taps      []float64 // flat, row-major (oc, ic, dy, dx)
	Bias      []float64 // [Co]
}

// Conv2D applies a Co x Ci x K x K convolution with the given padding
// and stride to in, returning a (Co, Hout, Wout) Tensor.
func Conv2D(in Tensor, w ConvWeights, padding, stride int) Tensor {
	if w.Ci != in.C {
		panic(fmt.Sprintf("plainref: Conv2D channel mismatch: input has %d, weights expect %d", in.C, w.Ci))
	}
	hPad, wPad := in.H+2*padding, in.W+2*padding
	hOut := (hPad-w.K)/stride + 1
	wOut := (wPad-w.K)/stride + 1
	out := NewTensor(w.Co, hOut, wOut)

	padded := NewTensor(in.C, hPad, wPad)
	for c := 0; c < in.C; c++ {
		for y := 0; y < in.H; y++ {
			for x := 0; x < in.W; x++ {
				padded.set(c, y+padding, x+padding, in.at(c, y, x))
			}
		}
	}

	tapsPerOut := w.Ci * w.K * w.K
	for oc := 0; oc < w.Co; oc++ {
		for oy := 0; oy < hOut; oy++ {
			for ox := 0; ox < wOut; ox++ {
				sum := w.Bias[oc]
				for ic := 0; ic < w.Ci; ic++ {
					for dy := 0; dy < w.K; dy++ {
						for dx := 0; dx < w.K; dx++ {
							tap := w.Taps[oc*tapsPerOut+ic*w.K*w.K+dy*w.K+dx]
							sum += tap * padded.at(ic, oy*stride+dy, ox*stride+dx)
						}
					}
				}
				out.set(oc, oy, ox, sum)
			}
		}
	}
	return out
}

// AvgPool2D applies a K x K, stride-s average pool independently per
// channel.
func AvgPool2D(in Tensor, k, stride int) Tensor {
	hOut, wOut := (in.H-k)/stride+1, (in.W-k)/stride+1
	out := NewTensor(in.C, hOut, wOut)
	norm := 1.0 / float64(k*k)
	for c := 0; c < in.C; c++ {
		for oy := 0; oy < hOut; oy++ {
			for ox := 0; ox < wOut; ox++ {
				sum := 0.0
				for dy := 0; dy < k; dy++ {
					for dx := 0; dx < k; dx++ {
						sum += in.at(c, oy*stride+dy, ox*stride+dx)
					}
				}
				out.set(c, oy, ox, sum*norm)
			}
		}
	}
	return out
}

// GlobalAvgPool reduces each channel to a single value.
func GlobalAvgPool(in Tensor) []float64 {
	out := make([]float64, in.C)
	norm := 1.0 / float64(in.H*in.W)
	for c := 0; c < in.C; c++ {
		sum := 0.0
		for y := 0; y < in.H; y++ {
			for x := 0; x < in.W; x++ {
				sum += in.at(c, y, x)
			}
		}
		out[c] = sum * norm
	}
	return out
}

// ReLU applies exact ReLU to a flat vector, returning a new slice and
// leaving v unchanged, for symmetry with the tensor ops above.
func ReLU(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x > 0 {
			out[i] = x
		}
	}
	return out
}

// ReLUTensor applies exact ReLU to every element of a Tensor.
func ReLUTensor(t Tensor) Tensor {
	out := Tensor{C: t.C, H: t.H, W: t.W, Data: ReLU(t.Data)}
	return out
}

// AddTensor sums two identically-shaped tensors, the residual connection.
func AddTensor(a, b Tensor) Tensor {
	if a.C != b.C || a.H != b.H || a.W != b.W {
		panic("plainref: AddTensor shape mismatch")
	}
	out := NewTensor(a.C, a.H, a.W)
	for i := range out.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out
}

// FCWeights holds one fully-connected layer's [Co][Ci] weights and [Co]
// bias.
type FCWeights struct {
	Co, Ci  int
	Weights []float64 // flat, row-major (oc, ic)
	Bias    []float64 // [Co]
}

// FC applies a fully-connected layer to a flat input vector.
func FC(in []float64, w FCWeights) []float64 {
	if len(in) != w.Ci {
		panic(fmt.Sprintf("plainref: FC input length %d, want %d", len(in), w.Ci))
	}
	out := make([]float64, w.Co)
	for oc := 0; oc < w.Co; oc++ {
		sum := w.Bias[oc]
		for ic := 0; ic < w.Ci; ic++ {
			sum += w.Weights[oc*w.Ci+ic] * in[ic]
		}
		out[oc] = sum
	}
	return out
}

// Argmax returns the index of the largest element, the class prediction
// spec §6's output format reports.
func Argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// Flatten reshapes a Tensor to a flat vector in the (C, H, W) row-major
// order the FC layer's Ci axis expects.
func Flatten(t Tensor) []float64 { return t.Data }
