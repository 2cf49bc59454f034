package nn

import "github.com/pkg/errors"

// ClearMinibatchErrorBuffers zeroes the error buffers of every non-input layer. Weights and
// gradient sums are left alone.
func (n *Network) ClearMinibatchErrorBuffers() {
	for i := 1; i < len(n.layers); i++ {
		l := n.layers[i]
		for j := range l.err {
			l.err[j] = 0
		}
	}
}

// AccumulateMinibatchError computes the errors for target like Backpropagation does and adds
// the resulting gradient of every weight to the layer's gradient sums. No weight changes.
func (n *Network) AccumulateMinibatchError(target []float64) error {
	if err := n.computeErrors(target); err != nil {
		return err
	}

	for i := n.lastIndex(); i > 0; i-- {
		cur, prev := n.layers[i], n.layers[i-1]
		in := prev.values()
		bias := prev.neuronCount

		copy(cur.errScaled, cur.err)

		g := cur.gradients.RawRowView(bias)
		for j := range g {
			g[j] += cur.errScaled[j] * in[bias]
		}

		for r := 0; r < prev.neuronCount; r++ {
			g := cur.gradients.RawRowView(r)
			x := in[r]
			for k := range g {
				g[k] += cur.errScaled[k] * x
			}
		}
	}
	return nil
}

// ApplyMinibatchUpdate applies the gradient sums collected over batchSize samples and zeroes
// them. The sums are not averaged, so learning rate and momentum are divided by batchSize; the
// L2 factor uses the undivided learning rate. Momentum and decay act once per batch, which
// differs from batchSize online steps.
func (n *Network) ApplyMinibatchUpdate(learningRate, momentum, weightDecay float64, batchSize, trainingSetSize int) error {
	if batchSize <= 0 {
		return errors.Wrapf(ErrInvalidBatchSize, "got %d", batchSize)
	}
	if trainingSetSize <= 0 {
		return errors.Wrapf(ErrInvalidTrainingSize, "got %d", trainingSetSize)
	}

	l2 := 1 - learningRate*weightDecay/float64(trainingSetSize)
	learningRate /= float64(batchSize)
	momentum /= float64(batchSize)

	for i := n.lastIndex(); i > 0; i-- {
		cur := n.layers[i]
		rows, _ := cur.weights.Dims()
		bias := rows - 1

		w, pd, g := cur.weights.RawRowView(bias), cur.prevDelta.RawRowView(bias), cur.gradients.RawRowView(bias)
		for j := range w {
			d := learningRate * g[j]
			w[j] += d + momentum*pd[j]
			pd[j] = d
			g[j] = 0
		}

		for r := 0; r < bias; r++ {
			w, pd, g := cur.weights.RawRowView(r), cur.prevDelta.RawRowView(r), cur.gradients.RawRowView(r)
			for k := range w {
				d := learningRate * g[k]
				w[k] = l2*w[k] + d + momentum*pd[k]
				pd[k] = d
				g[k] = 0
			}
		}
	}
	return nil
}
