package nn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// computeErrors fills the error buffers from the output layer back to the first hidden layer.
// Layer i+1 is complete before layer i reads it. Suppressed neurons get a zero error.
func (n *Network) computeErrors(target []float64) error {
	out := n.layers[n.lastIndex()]
	if len(target) != out.neuronCount {
		return errors.Wrapf(ErrShapeMismatch, "target has %d values, output layer has %d neurons", len(target), out.neuronCount)
	}
	for j := 0; j < out.neuronCount; j++ {
		out.err[j] = OutputError(n.cost, out.output[j], target[j], out.derivative(j))
	}

	for i := n.lastIndex() - 1; i > 0; i-- {
		hidden, next := n.layers[i], n.layers[i+1]
		nextErr := next.err[:next.neuronCount]
		for j := 0; j < hidden.neuronCount; j++ {
			if hidden.dropped(j) {
				hidden.err[j] = 0
				continue
			}
			sum := floats.Dot(next.weights.RawRowView(j), nextErr)
			hidden.err[j] = hidden.derivative(j) * sum
		}
	}
	return nil
}

// Backpropagation computes the error of every layer for target and then updates all weights
// from the last layer to the first:
//
//	bias:  Δ = lr·e_j·b,          w += Δ + momentum·Δ'
//	other: Δ = lr·e_k·o_j,        w = (1 - lr·decay/trainingSetSize)·w + Δ + momentum·Δ'
//
// where Δ' is the previous update of the same weight and b is the bias output (1.0). FeedForward
// must have run for the current input.
func (n *Network) Backpropagation(target []float64, learningRate, momentum, weightDecay float64, trainingSetSize int) error {
	if trainingSetSize <= 0 {
		return errors.Wrapf(ErrInvalidTrainingSize, "got %d", trainingSetSize)
	}
	if err := n.computeErrors(target); err != nil {
		return err
	}

	l2 := 1 - learningRate*weightDecay/float64(trainingSetSize)
	for i := n.lastIndex(); i > 0; i-- {
		cur, prev := n.layers[i], n.layers[i-1]
		in := prev.values()
		bias := prev.neuronCount

		for j := 0; j < cur.neuronCount; j++ {
			cur.errScaled[j] = learningRate * cur.err[j]
		}

		w, pd := cur.weights.RawRowView(bias), cur.prevDelta.RawRowView(bias)
		for j := range w {
			d := cur.errScaled[j] * in[bias]
			w[j] += d + momentum*pd[j]
			pd[j] = d
		}

		for r := 0; r < prev.neuronCount; r++ {
			w, pd := cur.weights.RawRowView(r), cur.prevDelta.RawRowView(r)
			x := in[r]
			for k := range w {
				d := cur.errScaled[k] * x
				w[k] = l2*w[k] + d + momentum*pd[k]
				pd[k] = d
			}
		}
	}
	return nil
}
