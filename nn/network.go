package nn

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// Topology describes the shape of a network: neuron counts and activation kinds per layer, the
// output cost and the seed of the network's random source.
type Topology struct {
	Sizes       []int
	Activations []ActivationKind
	Cost        CostKind
	Seed        uint64
}

// Network is a feed-forward multilayer perceptron. Layer 0 is the input layer.
//
// A Network is not safe for concurrent use; every method assumes exclusive access to the layer
// buffers.
type Network struct {
	layers []*Layer
	cost   CostKind
	rng    *rand.Rand

	learningRate float64
	momentum     float64
	weightDecay  float64
}

// NewNetwork builds a network with zero weights. Call Reset or ResetGaussian before training.
func NewNetwork(t Topology) (*Network, error) {
	if len(t.Sizes) < 2 {
		return nil, errors.Wrapf(ErrInvalidTopology, "need an input and an output layer, got %d layers", len(t.Sizes))
	}
	if len(t.Activations) != len(t.Sizes) {
		return nil, errors.Wrapf(ErrInvalidTopology, "%d layer sizes but %d activations", len(t.Sizes), len(t.Activations))
	}
	if !t.Cost.valid() {
		return nil, errors.Wrapf(ErrInvalidCost, "cost kind %d", int(t.Cost))
	}

	net := &Network{
		layers:       make([]*Layer, len(t.Sizes)),
		cost:         t.Cost,
		rng:          NewRand(t.Seed),
		learningRate: 0.1,
	}
	for i, size := range t.Sizes {
		if size <= 0 {
			return nil, errors.Wrapf(ErrInvalidTopology, "layer %d has %d neurons", i, size)
		}
		kind := t.Activations[i]
		switch {
		case !kind.valid():
			return nil, errors.Wrapf(ErrInvalidActivation, "layer %d: kind %d", i, int(kind))
		case i == 0 && kind != InputLayer:
			return nil, errors.Wrapf(ErrInvalidActivation, "layer 0 must be the input layer, got %s", kind)
		case i > 0 && kind == InputLayer:
			return nil, errors.Wrapf(ErrInvalidActivation, "layer %d cannot be an input layer", i)
		}

		prev := 0
		if i > 0 {
			prev = t.Sizes[i-1]
		}
		net.layers[i] = newLayer(size, prev, kind)
	}
	return net, nil
}

func (n *Network) lastIndex() int {
	return len(n.layers) - 1
}

// Layers returns the number of layers, input layer included.
func (n *Network) Layers() int { return len(n.layers) }

// Layer returns layer i.
func (n *Network) Layer(i int) *Layer { return n.layers[i] }

// InputSize returns the neuron count of the input layer.
func (n *Network) InputSize() int { return n.layers[0].neuronCount }

// OutputSize returns the neuron count of the output layer.
func (n *Network) OutputSize() int { return n.layers[n.lastIndex()].neuronCount }

// Cost returns the cost kind used at the output layer.
func (n *Network) Cost() CostKind { return n.cost }

// Rand returns the network's random source.
func (n *Network) Rand() *rand.Rand { return n.rng }

// SetHyperParameters stores the learning rate, momentum and L2 weight decay. The update methods
// take their hyperparameters as arguments; these values are what drivers pass to them.
func (n *Network) SetHyperParameters(learningRate, momentum, weightDecay float64) {
	n.learningRate = learningRate
	n.momentum = momentum
	n.weightDecay = weightDecay
}

// HyperParameters returns the values stored by SetHyperParameters.
func (n *Network) HyperParameters() (learningRate, momentum, weightDecay float64) {
	return n.learningRate, n.momentum, n.weightDecay
}

// SetDropout sets the dropout probability of layer i. The output layer cannot use dropout.
func (n *Network) SetDropout(i int, p float64) error {
	switch {
	case i < 0 || i > n.lastIndex():
		return errors.Wrapf(ErrInvalidTopology, "no layer %d in a %d layer network", i, len(n.layers))
	case i == n.lastIndex() && p != 0:
		return errors.Wrap(ErrInvalidDropout, "the output layer cannot use dropout")
	}
	return errors.Wrapf(n.layers[i].SetDropoutProbability(p), "layer %d", i)
}

// Reset fills all weights with U(-1,1) values and clears the momentum history.
func (n *Network) Reset() {
	for _, l := range n.layers {
		l.Reset(n.rng)
	}
}

// ResetGaussian fills all weights with fan-in scaled Gaussian values and clears the momentum
// history.
func (n *Network) ResetGaussian() {
	for _, l := range n.layers {
		l.ResetGaussian(n.rng)
	}
}

// ResetGradientAccumulators zeroes the minibatch gradient sums of every layer.
func (n *Network) ResetGradientAccumulators() {
	for _, l := range n.layers {
		l.ResetGradientAccumulator()
	}
}

// GenerateDropoutMasks draws a fresh mask for every layer with a dropout probability.
func (n *Network) GenerateDropoutMasks(allowBiasDrop bool) {
	for _, l := range n.layers {
		l.GenerateDropoutMask(n.rng, allowBiasDrop)
	}
}

// ResetDropoutMasks deactivates all masks so the next pass uses every neuron.
func (n *Network) ResetDropoutMasks() {
	for _, l := range n.layers {
		l.ResetDropoutMask()
	}
}

// SetInput copies an already normalised input vector into the input layer.
func (n *Network) SetInput(input []float64) error {
	in := n.layers[0]
	if len(input) != in.neuronCount {
		return errors.Wrapf(ErrShapeMismatch, "input has %d values, input layer has %d neurons", len(input), in.neuronCount)
	}
	copy(in.output, input)
	return nil
}

// FeedForward propagates the input layer's values to the output layer. Weights are not touched.
func (n *Network) FeedForward() {
	for i := 1; i < len(n.layers); i++ {
		n.layers[i].activate(n.layers[i-1].values())
	}
}

// Output returns a copy of the output layer's neuron values.
func (n *Network) Output() []float64 {
	out := n.layers[n.lastIndex()].Outputs()
	return append([]float64(nil), out...)
}

// ArgMax returns the index of the output neuron with the highest value.
func (n *Network) ArgMax() int {
	return floats.MaxIdx(n.layers[n.lastIndex()].Outputs())
}

// CheckFinite returns ErrNonFinite if any weight is NaN or infinite.
func (n *Network) CheckFinite() error {
	for i, l := range n.layers {
		if l.weights == nil {
			continue
		}
		rows, _ := l.weights.Dims()
		for r := 0; r < rows; r++ {
			row := l.weights.RawRowView(r)
			if floats.HasNaN(row) {
				return errors.Wrapf(ErrNonFinite, "layer %d row %d contains NaN", i, r)
			}
			for c, v := range row {
				if math.IsInf(v, 0) {
					return errors.Wrapf(ErrNonFinite, "layer %d weight [%d][%d] is %v", i, r, c, v)
				}
			}
		}
	}
	return nil
}

// String describes the topology and hyperparameters in a human readable form.
func (n *Network) String() string {
	sizes := make([]string, len(n.layers))
	kinds := make([]string, len(n.layers))
	var dropout []string
	for i, l := range n.layers {
		sizes[i] = strconv.Itoa(l.neuronCount)
		kinds[i] = l.kind.String()
		if l.dropoutProbability > 0 {
			dropout = append(dropout, fmt.Sprintf("%d:%g", i, l.dropoutProbability))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "layers %s (%s), cost %s", strings.Join(sizes, "-"), strings.Join(kinds, ", "), n.cost)
	fmt.Fprintf(&b, ", learning rate %g, momentum %g, weight decay %g", n.learningRate, n.momentum, n.weightDecay)
	if len(dropout) > 0 {
		fmt.Fprintf(&b, ", dropout %s", strings.Join(dropout, " "))
	}
	return b.String()
}
