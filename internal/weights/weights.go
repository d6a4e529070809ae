// Package weights loads the CSV weight/bias files spec §3 describes
// ("CSV with one row of flat floats. Convolution weights are reshaped to
// [out_ch][in_ch][kH][kW]; FC weights to [out_ch][in_ch]; bias files are
// a single row") and encodes them into the plaintexts pkg/kernel
// consumes, caching the encoded result to a gob file so repeated
// server-infer runs skip re-encoding, grounded on csp.go's
// saveModelToDisk/loadModelFromDisk gob round trip.
package weights

import (
	"bufio"
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"os"
	"strconv"

	"ckksnn/pkg/cryptoctx"
	"ckksnn/pkg/kernel"
	"ckksnn/pkg/serialization"
)

// readRow parses one CSV file's single row of flat floats.
func readRow(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("weights: opening %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(bufio.NewReader(f)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("weights: reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("weights: %s is empty", path)
	}
	row := rows[0]
	out := make([]float64, len(row))
	for i, cell := range row {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("weights: parsing %s column %d: %w", path, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ConvLayer holds one convolution layer's flat weight/bias data before
// encoding, reshaped per spec §3 to [out_ch][in_ch][kH][kW] and [out_ch].
type ConvLayer struct {
	Co, Ci, K int
	Weights   []float64 // flat, row-major over (oc, ic, dy, dx)
	Bias      []float64 // [Co]
}

// LoadConvLayer reads a convolution weight and bias CSV pair.
func LoadConvLayer(weightsPath, biasPath string, co, ci, k int) (ConvLayer, error) {
	w, err := readRow(weightsPath)
	if err != nil {
		return ConvLayer{}, err
	}
	if len(w) != co*ci*k*k {
		return ConvLayer{}, fmt.Errorf("weights: %s has %d values, want %d (co*ci*k*k)", weightsPath, len(w), co*ci*k*k)
	}
	b, err := readRow(biasPath)
	if err != nil {
		return ConvLayer{}, err
	}
	if len(b) != co {
		return ConvLayer{}, fmt.Errorf("weights: %s has %d values, want %d (co)", biasPath, len(b), co)
	}
	return ConvLayer{Co: co, Ci: ci, K: k, Weights: w, Bias: b}, nil
}

// FCLayer holds one fully-connected layer's flat weight/bias data before
// encoding, reshaped per spec §3 to [out_ch][in_ch].
type FCLayer struct {
	Co, Ci  int
	Weights []float64 // flat, row-major over (oc, ic)
	Bias    []float64 // [Co]
}

// LoadFCLayer reads a fully-connected weight and bias CSV pair.
func LoadFCLayer(weightsPath, biasPath string, co, ci int) (FCLayer, error) {
	w, err := readRow(weightsPath)
	if err != nil {
		return FCLayer{}, err
	}
	if len(w) != co*ci {
		return FCLayer{}, fmt.Errorf("weights: %s has %d values, want %d (co*ci)", weightsPath, len(w), co*ci)
	}
	b, err := readRow(biasPath)
	if err != nil {
		return FCLayer{}, err
	}
	if len(b) != co {
		return FCLayer{}, fmt.Errorf("weights: %s has %d values, want %d (co)", biasPath, len(b), co)
	}
	return FCLayer{Co: co, Ci: ci, Weights: w, Bias: b}, nil
}

// EncodeConv builds a kernel.ConvWeights from a ConvLayer's flat data,
// row-major taps per output channel and a bias plaintext broadcast to
// every live slot of that channel's output tile.
func EncodeConv(ctx *cryptoctx.Context, layer ConvLayer, level, slots, outTile int) kernel.ConvWeights {
	taps := make([][]*cryptoctx.Plaintext, layer.Co)
	bias := make([]*cryptoctx.Plaintext, layer.Co)
	tapsPerChannel := layer.Ci * layer.K * layer.K

	for oc := 0; oc < layer.Co; oc++ {
		row := make([]*cryptoctx.Plaintext, tapsPerChannel)
		for t := 0; t < tapsPerChannel; t++ {
			v := layer.Weights[oc*tapsPerChannel+t]
			row[t] = ctx.Encode(broadcast(v, slots), level)
		}
		taps[oc] = row

		biasVals := make([]float64, slots)
		for s := 0; s < outTile; s++ {
			biasVals[oc*outTile+s] = layer.Bias[oc]
		}
		bias[oc] = ctx.Encode(biasVals, level-3)
	}
	return kernel.ConvWeights{Taps: taps, Bias: bias}
}

// EncodeFC builds a kernel.FCWeights from an FCLayer's flat data: each
// output neuron's weight row spread across the first Ci slots, and a
// packed bias with one value per output slot.
func EncodeFC(ctx *cryptoctx.Context, layer FCLayer, level, slots int) kernel.FCWeights {
	rows := make([]*cryptoctx.Plaintext, layer.Co)
	for oc := 0; oc < layer.Co; oc++ {
		v := make([]float64, slots)
		for ic := 0; ic < layer.Ci; ic++ {
			v[ic] = layer.Weights[oc*layer.Ci+ic]
		}
		rows[oc] = ctx.Encode(v, level)
	}
	biasVals := make([]float64, slots)
	for oc := 0; oc < layer.Co && oc < slots; oc++ {
		biasVals[oc] = layer.Bias[oc]
	}
	bias := ctx.Encode(biasVals, level-2)
	return kernel.FCWeights{Rows: rows, Bias: bias}
}

func broadcast(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// storedConvWeights and storedFCWeights are the gob-serializable form of
// a kernel.ConvWeights/FCWeights, one entry per encoded plaintext,
// mirroring StoredModel's per-ciphertext byte slices.
type storedConvWeights struct {
	Taps [][][]byte
	Bias [][]byte
}

type storedFCWeights struct {
	Rows [][]byte
	Bias []byte
}

// StoredWeights is the gob-serializable, already-encoded form of a
// network's weights, keyed by layer name, cached to disk between
// server-infer runs so a repeated invocation skips re-encoding every CSV.
type StoredWeights struct {
	Conv map[string]storedConvWeights
	FC   map[string]storedFCWeights
}

// PutConv records an encoded convolution layer's weights under name.
func (sw *StoredWeights) PutConv(name string, w kernel.ConvWeights) error {
	if sw.Conv == nil {
		sw.Conv = make(map[string]storedConvWeights)
	}
	stored := storedConvWeights{Taps: make([][][]byte, len(w.Taps)), Bias: make([][]byte, len(w.Bias))}
	for oc, row := range w.Taps {
		stored.Taps[oc] = make([][]byte, len(row))
		for t, pt := range row {
			b, err := serialization.SerializePlaintext(pt)
			if err != nil {
				return fmt.Errorf("weights: serializing %s tap[%d][%d]: %w", name, oc, t, err)
			}
			stored.Taps[oc][t] = b
		}
	}
	for oc, pt := range w.Bias {
		b, err := serialization.SerializePlaintext(pt)
		if err != nil {
			return fmt.Errorf("weights: serializing %s bias[%d]: %w", name, oc, err)
		}
		stored.Bias[oc] = b
	}
	sw.Conv[name] = stored
	return nil
}

// PutFC records an encoded fully-connected layer's weights under name.
func (sw *StoredWeights) PutFC(name string, w kernel.FCWeights) error {
	if sw.FC == nil {
		sw.FC = make(map[string]storedFCWeights)
	}
	stored := storedFCWeights{Rows: make([][]byte, len(w.Rows))}
	for oc, pt := range w.Rows {
		b, err := serialization.SerializePlaintext(pt)
		if err != nil {
			return fmt.Errorf("weights: serializing %s row[%d]: %w", name, oc, err)
		}
		stored.Rows[oc] = b
	}
	b, err := serialization.SerializePlaintext(w.Bias)
	if err != nil {
		return fmt.Errorf("weights: serializing %s bias: %w", name, err)
	}
	stored.Bias = b
	sw.FC[name] = stored
	return nil
}

// GetConv decodes a previously stored convolution layer's weights.
func (sw StoredWeights) GetConv(name string) (kernel.ConvWeights, bool, error) {
	stored, ok := sw.Conv[name]
	if !ok {
		return kernel.ConvWeights{}, false, nil
	}
	w := kernel.ConvWeights{Taps: make([][]*cryptoctx.Plaintext, len(stored.Taps)), Bias: make([]*cryptoctx.Plaintext, len(stored.Bias))}
	for oc, row := range stored.Taps {
		w.Taps[oc] = make([]*cryptoctx.Plaintext, len(row))
		for t, b := range row {
			pt, err := serialization.DeserializePlaintext(b)
			if err != nil {
				return kernel.ConvWeights{}, false, fmt.Errorf("weights: deserializing %s tap[%d][%d]: %w", name, oc, t, err)
			}
			w.Taps[oc][t] = pt
		}
	}
	for oc, b := range stored.Bias {
		pt, err := serialization.DeserializePlaintext(b)
		if err != nil {
			return kernel.ConvWeights{}, false, fmt.Errorf("weights: deserializing %s bias[%d]: %w", name, oc, err)
		}
		w.Bias[oc] = pt
	}
	return w, true, nil
}

// GetFC decodes a previously stored fully-connected layer's weights.
func (sw StoredWeights) GetFC(name string) (kernel.FCWeights, bool, error) {
	stored, ok := sw.FC[name]
	if !ok {
		return kernel.FCWeights{}, false, nil
	}
	w := kernel.FCWeights{Rows: make([]*cryptoctx.Plaintext, len(stored.Rows))}
	for oc, b := range stored.Rows {
		pt, err := serialization.DeserializePlaintext(b)
		if err != nil {
			return kernel.FCWeights{}, false, fmt.Errorf("weights: deserializing %s row[%d]: %w", name, oc, err)
		}
		w.Rows[oc] = pt
	}
	bias, err := serialization.DeserializePlaintext(stored.Bias)
	if err != nil {
		return kernel.FCWeights{}, false, fmt.Errorf("weights: deserializing %s bias: %w", name, err)
	}
	w.Bias = bias
	return w, true, nil
}

// SaveEncoded gob-encodes a StoredWeights to path.
func SaveEncoded(path string, sw StoredWeights) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("weights: creating %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(sw); err != nil {
		return fmt.Errorf("weights: encoding %s: %w", path, err)
	}
	return nil
}

// Source adapts a StoredWeights to pkg/driver's WeightSource interface.
// A fused shortcut layer's shortcut-branch weights are stored under the
// layer's name with a "_shortcut" suffix.
type Source struct {
	sw StoredWeights
}

// NewSource wraps sw for use as a driver.WeightSource.
func NewSource(sw StoredWeights) Source { return Source{sw: sw} }

// ConvWeights implements driver.WeightSource.
func (s Source) ConvWeights(name string) kernel.ConvWeights {
	w, ok, err := s.sw.GetConv(name)
	if err != nil {
		panic(fmt.Sprintf("weights: %v", err))
	}
	if !ok {
		panic(fmt.Sprintf("weights: no convolution weights stored for layer %q", name))
	}
	return w
}

// ShortcutWeights implements driver.WeightSource.
func (s Source) ShortcutWeights(name string) kernel.ConvWeights {
	w, ok, err := s.sw.GetConv(name + "_shortcut")
	if err != nil {
		panic(fmt.Sprintf("weights: %v", err))
	}
	if !ok {
		panic(fmt.Sprintf("weights: no shortcut weights stored for layer %q", name))
	}
	return w
}

// FCWeights implements driver.WeightSource.
func (s Source) FCWeights(name string) kernel.FCWeights {
	w, ok, err := s.sw.GetFC(name)
	if err != nil {
		panic(fmt.Sprintf("weights: %v", err))
	}
	if !ok {
		panic(fmt.Sprintf("weights: no fully-connected weights stored for layer %q", name))
	}
	return w
}

// LoadEncoded gob-decodes a StoredWeights from path.
func LoadEncoded(path string) (StoredWeights, error) {
	f, err := os.Open(path)
	if err != nil {
		return StoredWeights{}, fmt.Errorf("weights: opening %s: %w", path, err)
	}
	defer f.Close()
	var sw StoredWeights
	if err := gob.NewDecoder(f).Decode(&sw); err != nil {
		return StoredWeights{}, fmt.Errorf("weights: decoding %s: %w", path, err)
	}
	return sw, nil
}
