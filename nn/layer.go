package nn

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Layer holds one layer of neurons and the weights that connect it to the previous layer.
//
// Every per-neuron buffer has neuronCount+1 slots; the last one belongs to the bias neuron whose
// output is always 1.0. Weight rows index the previous layer's neurons (bias row last) and
// columns index this layer's neurons. The input layer has no weights.
type Layer struct {
	neuronCount int
	kind        ActivationKind

	output    []float64
	preact    *mat.VecDense
	err       []float64
	errScaled []float64

	weights   *mat.Dense
	prevDelta *mat.Dense
	gradients *mat.Dense

	dropoutProbability float64
	dropoutMask        []bool
	maskActive         bool
	masked             []float64
}

func newLayer(neuronCount, prevNeuronCount int, kind ActivationKind) *Layer {
	l := &Layer{
		neuronCount: neuronCount,
		kind:        kind,
		output:      make([]float64, neuronCount+1),
		err:         make([]float64, neuronCount+1),
		errScaled:   make([]float64, neuronCount+1),
		dropoutMask: make([]bool, neuronCount+1),
		masked:      make([]float64, neuronCount+1),
	}
	l.output[neuronCount] = 1

	if prevNeuronCount > 0 {
		l.preact = mat.NewVecDense(neuronCount, nil)
		l.weights = mat.NewDense(prevNeuronCount+1, neuronCount, nil)
		l.prevDelta = mat.NewDense(prevNeuronCount+1, neuronCount, nil)
		l.gradients = mat.NewDense(prevNeuronCount+1, neuronCount, nil)
	}
	return l
}

// NeuronCount returns the number of neurons, not counting the bias neuron.
func (l *Layer) NeuronCount() int { return l.neuronCount }

// Kind returns the layer's activation kind.
func (l *Layer) Kind() ActivationKind { return l.kind }

// Outputs returns the current neuron outputs without the bias slot. The slice aliases the
// layer's buffer and is overwritten by the next FeedForward.
func (l *Layer) Outputs() []float64 { return l.output[:l.neuronCount] }

// Errors returns the error terms of the last backward pass, without the bias slot.
func (l *Layer) Errors() []float64 { return l.err[:l.neuronCount] }

// Weights returns the weight matrix, or nil for the input layer. Row prev.NeuronCount() is the
// bias row.
func (l *Layer) Weights() *mat.Dense { return l.weights }

// SetWeights copies w into the layer's weight matrix and clears the momentum history.
func (l *Layer) SetWeights(w mat.Matrix) error {
	if l.weights == nil {
		return errors.Wrap(ErrShapeMismatch, "input layer has no weights")
	}
	r, c := w.Dims()
	wr, wc := l.weights.Dims()
	if r != wr || c != wc {
		return errors.Wrapf(ErrShapeMismatch, "weights are %dx%d, layer needs %dx%d", r, c, wr, wc)
	}
	l.weights.Copy(w)
	l.prevDelta.Zero()
	return nil
}

// DropoutProbability returns the probability of a neuron being suppressed in a training pass.
func (l *Layer) DropoutProbability() float64 { return l.dropoutProbability }

// SetDropoutProbability sets the dropout probability. A layer needs at least two neurons to
// keep one active and one suppressed neuron in every mask.
func (l *Layer) SetDropoutProbability(p float64) error {
	if p < 0 || p > 1 {
		return errors.Wrapf(ErrInvalidDropout, "probability %g outside [0,1]", p)
	}
	if p > 0 && l.neuronCount < 2 {
		return errors.Wrapf(ErrInvalidDropout, "layer with %d neuron cannot use dropout", l.neuronCount)
	}
	for i := range l.dropoutMask {
		l.dropoutMask[i] = false
	}
	l.maskActive = false
	l.dropoutProbability = p
	return nil
}

// DropoutMask returns the current mask; true marks a suppressed neuron. The last slot is the
// bias neuron.
func (l *Layer) DropoutMask() []bool { return l.dropoutMask }

// Reset fills the weights with U(-1,1) values and clears the momentum history.
func (l *Layer) Reset(rng *rand.Rand) {
	if l.weights == nil {
		return
	}
	fillUniform(l.weights, rng)
	l.prevDelta.Zero()
}

// ResetGaussian fills the weights with N(0,1)/sqrt(fan-in), N(0,1) for the bias row, and clears
// the momentum history.
func (l *Layer) ResetGaussian(rng *rand.Rand) {
	if l.weights == nil {
		return
	}
	rows, _ := l.weights.Dims()
	fillGaussian(l.weights, rows-1, rng)
	l.prevDelta.Zero()
}

// ResetGradientAccumulator zeroes the minibatch gradient sums.
func (l *Layer) ResetGradientAccumulator() {
	if l.gradients != nil {
		l.gradients.Zero()
	}
}

// ResetDropoutMask marks every neuron as active again.
func (l *Layer) ResetDropoutMask() {
	if l.dropoutProbability == 0 {
		return
	}
	for i := range l.dropoutMask {
		l.dropoutMask[i] = false
	}
	l.maskActive = false
}

// GenerateDropoutMask draws a new mask. Each neuron is suppressed with the layer's dropout
// probability; the bias neuron only when allowBiasDrop is set. At least one neuron stays active
// and at least one is suppressed.
func (l *Layer) GenerateDropoutMask(rng *rand.Rand, allowBiasDrop bool) {
	p := l.dropoutProbability
	if p == 0 {
		return
	}

	n := l.neuronCount
	dropped := 0
	for j := 0; j < n; j++ {
		l.dropoutMask[j] = rng.Float64() < p
		if l.dropoutMask[j] {
			dropped++
		}
	}
	l.dropoutMask[n] = allowBiasDrop && rng.Float64() < p

	switch dropped {
	case 0:
		l.dropoutMask[rng.Intn(n)] = true
	case n:
		l.dropoutMask[rng.Intn(n)] = false
	}
	l.maskActive = true
}

// dropped reports whether neuron j is suppressed in the current pass.
func (l *Layer) dropped(j int) bool {
	return l.maskActive && l.dropoutMask[j]
}

// values returns the outputs as seen by the next layer: suppressed neurons, bias included,
// contribute zero.
func (l *Layer) values() []float64 {
	if !l.maskActive {
		return l.output
	}
	copy(l.masked, l.output)
	for j, off := range l.dropoutMask {
		if off {
			l.masked[j] = 0
		}
	}
	return l.masked
}

// derivative evaluates the activation derivative of neuron j after the last forward pass.
func (l *Layer) derivative(j int) float64 {
	if UsesOutput(l.kind) {
		return Derivative(l.kind, l.output[j])
	}
	return Derivative(l.kind, l.preact.AtVec(j))
}

// activate computes this layer's outputs from the previous layer's values.
func (l *Layer) activate(prev []float64) {
	l.preact.MulVec(l.weights.T(), mat.NewVecDense(len(prev), prev))

	n := l.neuronCount
	for j := 0; j < n; j++ {
		l.output[j] = Activate(l.kind, l.preact.AtVec(j))
	}
	if l.kind == Softmax {
		SoftmaxBuffer(l.output[:n])
	}
}
