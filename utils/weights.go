package utils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"mlp_lib/nn"
)

// WeightsVersion is written into every snapshot.
const WeightsVersion = "1.0"

// WeightData represents serializable weight data for a layer
type WeightData struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// ModelWeights represents all weights in a model
type ModelWeights struct {
	Version      string                 `json:"version"`
	Architecture []int                  `json:"architecture,omitempty"`
	Activations  []string               `json:"activations,omitempty"`
	Layers       map[string]LayerWeight `json:"layers"`
}

// LayerWeight contains weights and bias for a layer
type LayerWeight struct {
	Weight *WeightData `json:"weight,omitempty"`
	Bias   *WeightData `json:"bias,omitempty"`
}

// SaveWeights saves model weights to a JSON file
func SaveWeights(filepath string, weights *ModelWeights) error {
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal weights")
	}
	return os.WriteFile(filepath, data, 0644)
}

// LoadWeights loads model weights from a JSON file
func LoadWeights(filepath string) (*ModelWeights, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights file")
	}
	var weights ModelWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal weights")
	}
	return &weights, nil
}

func layerName(i int) string { return fmt.Sprintf("layer%d", i) }

// SnapshotNetwork copies the weights of every non-input layer. The bias row of each weight matrix
// is stored separately as the layer's Bias.
func SnapshotNetwork(net *nn.Network) *ModelWeights {
	mw := &ModelWeights{
		Version: WeightsVersion,
		Layers:  make(map[string]LayerWeight, net.Layers()-1),
	}
	for i := 0; i < net.Layers(); i++ {
		l := net.Layer(i)
		mw.Architecture = append(mw.Architecture, l.NeuronCount())
		mw.Activations = append(mw.Activations, l.Kind().String())
		if i == 0 {
			continue
		}

		w := l.Weights()
		rows, cols := w.Dims()
		body := make([]float64, 0, (rows-1)*cols)
		for r := 0; r < rows-1; r++ {
			body = append(body, w.RawRowView(r)...)
		}
		name := layerName(i)
		mw.Layers[name] = LayerWeight{
			Weight: &WeightData{Name: name + "_weight", Shape: []int{rows - 1, cols}, Data: body},
			Bias:   &WeightData{Name: name + "_bias", Shape: []int{cols}, Data: append([]float64(nil), w.RawRowView(rows-1)...)},
		}
	}
	return mw
}

// RestoreNetwork loads a snapshot into net. Every layer must be present with matching shapes;
// momentum history is cleared.
func RestoreNetwork(net *nn.Network, mw *ModelWeights) error {
	for i := 1; i < net.Layers(); i++ {
		name := layerName(i)
		lw, ok := mw.Layers[name]
		if !ok || lw.Weight == nil || lw.Bias == nil {
			return errors.Wrapf(nn.ErrShapeMismatch, "snapshot has no weights for %s", name)
		}
		if len(lw.Weight.Shape) != 2 || lw.Weight.Shape[0] <= 0 || lw.Weight.Shape[1] <= 0 {
			return errors.Wrapf(nn.ErrShapeMismatch, "%s weight shape %v", name, lw.Weight.Shape)
		}
		rows, cols := lw.Weight.Shape[0], lw.Weight.Shape[1]
		if len(lw.Weight.Data) != rows*cols || len(lw.Bias.Data) != cols {
			return errors.Wrapf(nn.ErrShapeMismatch, "%s holds %d weights and %d biases for shape %v", name, len(lw.Weight.Data), len(lw.Bias.Data), lw.Weight.Shape)
		}

		data := make([]float64, 0, (rows+1)*cols)
		data = append(data, lw.Weight.Data...)
		data = append(data, lw.Bias.Data...)
		if err := net.Layer(i).SetWeights(mat.NewDense(rows+1, cols, data)); err != nil {
			return errors.Wrap(err, name)
		}
	}
	return nil
}
