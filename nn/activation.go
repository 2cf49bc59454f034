package nn

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ActivationKind selects the activation function of a layer.
type ActivationKind int

const (
	InputLayer ActivationKind = iota
	Sigmoid
	Tanh
	Softmax
	Softplus
	ReLU
)

var activationNames = map[ActivationKind]string{
	InputLayer: "input",
	Sigmoid:    "sigmoid",
	Tanh:       "tanh",
	Softmax:    "softmax",
	Softplus:   "softplus",
	ReLU:       "relu",
}

// ActivationLookup maps the lower-case names used on the command line to kinds.
var ActivationLookup = map[string]ActivationKind{
	"input":    InputLayer,
	"sigmoid":  Sigmoid,
	"tanh":     Tanh,
	"softmax":  Softmax,
	"softplus": Softplus,
	"relu":     ReLU,
}

func (k ActivationKind) String() string {
	if name, ok := activationNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k ActivationKind) valid() bool {
	_, ok := activationNames[k]
	return ok
}

// ParseActivation returns the kind registered under name (case-insensitive).
func ParseActivation(name string) (ActivationKind, error) {
	k, ok := ActivationLookup[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidActivation, "unknown activation %q", name)
	}
	return k, nil
}

// Activate applies the element-wise part of kind to x. Softmax is the identity here; the layer
// normalises the whole buffer afterwards with SoftmaxBuffer.
func Activate(kind ActivationKind, x float64) float64 {
	switch kind {
	case Sigmoid:
		return 1.0 / (1.0 + math.Exp(-x))
	case Tanh:
		return math.Tanh(x)
	case Softplus:
		return math.Log(1.0 + math.Exp(x))
	case ReLU:
		if x < 0 {
			return 0
		}
		return x
	default:
		return x
	}
}

// Derivative returns the derivative of kind. Sigmoid and Softmax expect the activated output y;
// Tanh, Softplus and ReLU expect the pre-activation x. UsesOutput tells which one a kind needs.
//
// Softmax uses y(1-y), the diagonal of the real Jacobian only.
func Derivative(kind ActivationKind, v float64) float64 {
	switch kind {
	case Sigmoid, Softmax:
		return v * (1 - v)
	case Tanh:
		t := math.Tanh(v)
		return 1.0 - t*t
	case Softplus:
		return 1.0 / (1.0 + math.Exp(-v))
	case ReLU:
		if v > 0 {
			return 1
		}
		return 0
	default:
		return 1
	}
}

// UsesOutput reports whether Derivative of kind is evaluated on the activated output rather
// than on the pre-activation.
func UsesOutput(kind ActivationKind) bool {
	return kind == Sigmoid || kind == Softmax
}

// SoftmaxBuffer replaces values with exp(v_i)/Σexp(v_j) in place. The maximum is subtracted
// before exponentiation, which leaves the result unchanged.
func SoftmaxBuffer(values []float64) {
	if len(values) == 0 {
		return
	}
	hi := floats.Max(values)
	for i, v := range values {
		values[i] = math.Exp(v - hi)
	}
	floats.Scale(1/floats.Sum(values), values)
}

// CostKind selects the cost function used at the output layer.
type CostKind int

const (
	Quadratic CostKind = iota
	CrossEntropy
)

// CostLookup maps command line names to cost kinds.
var CostLookup = map[string]CostKind{
	"quadratic":     Quadratic,
	"mse":           Quadratic,
	"crossentropy":  CrossEntropy,
	"cross-entropy": CrossEntropy,
}

func (c CostKind) String() string {
	switch c {
	case Quadratic:
		return "quadratic"
	case CrossEntropy:
		return "crossentropy"
	}
	return "unknown"
}

func (c CostKind) valid() bool {
	return c == Quadratic || c == CrossEntropy
}

// ParseCost returns the cost kind registered under name (case-insensitive).
func ParseCost(name string) (CostKind, error) {
	c, ok := CostLookup[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidCost, "unknown cost %q", name)
	}
	return c, nil
}

// OutputError is the error term of one output neuron, given the activation derivative at that
// neuron. Cross-entropy is taken as target-output whatever the output activation is; that is
// exact for sigmoid outputs only.
func OutputError(cost CostKind, output, target, derivative float64) float64 {
	if cost == CrossEntropy {
		return target - output
	}
	return (target - output) * derivative
}

// Cost returns the scalar loss of output against target: ½Σ(t-o)² for Quadratic and the binary
// cross-entropy -Σ[t·ln(o) + (1-t)·ln(1-o)] for CrossEntropy.
func Cost(cost CostKind, output, target []float64) float64 {
	var sum float64
	for i, o := range output {
		t := target[i]
		switch cost {
		case CrossEntropy:
			sum -= t*math.Log(o) + (1-t)*math.Log(1-o)
		default:
			d := t - o
			sum += 0.5 * d * d
		}
	}
	return sum
}
