// Package trainer drives an nn.Network over a labelled image set: it normalises pixels, encodes
// targets, shuffles, runs online or minibatch epochs and reports progress. SetStopFlag and
// WorkPercentage may be called from other goroutines while an epoch runs.
package trainer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"mlp_lib/nn"
	"mlp_lib/utils"
)

const version = "mlp_lib trainer v1.1"

// Sentinels returned by Classify.
const (
	Cancelled = -1
	Rejected  = -2
)

var (
	ErrNotInitialized = errors.New("trainer has no training material")
	ErrInvalidData    = errors.New("invalid training material")
	ErrCancelled      = errors.New("operation cancelled")
)

// Config holds everything New needs to build and initialise a network.
type Config struct {
	Topology     nn.Topology
	LearningRate float64
	Momentum     float64
	WeightDecay  float64

	// Dropout holds one probability per layer; nil disables dropout.
	Dropout       []float64
	AllowBiasDrop bool

	Gaussian      bool
	CheckNumerics bool
}

// Trainer owns a network and the material it is trained on.
type Trainer struct {
	cfg Config
	net *nn.Network

	data   [][]float64
	labels []byte
	order  []int

	input  []float64
	target []float64

	stop  atomic.Bool
	done  atomic.Int64
	total atomic.Int64

	hook  func(done, total int)
	stats *utils.TimingStats
}

// New builds the network described by cfg and resets its weights.
func New(cfg Config) (*Trainer, error) {
	net, err := nn.NewNetwork(cfg.Topology)
	if err != nil {
		return nil, err
	}
	if cfg.Dropout != nil && len(cfg.Dropout) != net.Layers() {
		return nil, errors.Wrapf(nn.ErrInvalidDropout, "%d dropout values for %d layers", len(cfg.Dropout), net.Layers())
	}
	for i, p := range cfg.Dropout {
		if err := net.SetDropout(i, p); err != nil {
			return nil, err
		}
	}
	net.SetHyperParameters(cfg.LearningRate, cfg.Momentum, cfg.WeightDecay)

	if cfg.Gaussian {
		net.ResetGaussian()
	} else {
		net.Reset()
	}

	return &Trainer{
		cfg:    cfg,
		net:    net,
		input:  make([]float64, net.InputSize()),
		target: make([]float64, net.OutputSize()),
	}, nil
}

// Network returns the trained network.
func (t *Trainer) Network() *nn.Network { return t.net }

// Version identifies the trainer implementation.
func (t *Trainer) Version() string { return version }

// NetworkDescription describes the topology and hyperparameters.
func (t *Trainer) NetworkDescription() string { return t.net.String() }

// SetProgressHook registers fn to be called after every trained sample (online) or batch
// (minibatch) with the number of samples done in the current epoch.
func (t *Trainer) SetProgressHook(fn func(done, total int)) { t.hook = fn }

// SetTimingStats makes the trainer add its forward, backward and update times to stats.
func (t *Trainer) SetTimingStats(stats *utils.TimingStats) { t.stats = stats }

// SetStopFlag requests (or withdraws a request) that the running epoch stop at the next sample
// or batch boundary. While set, Classify returns Cancelled.
func (t *Trainer) SetStopFlag(stop bool) { t.stop.Store(stop) }

// WorkPercentage returns how much of the current epoch is done, in [0,100].
func (t *Trainer) WorkPercentage() int {
	total := t.total.Load()
	if total == 0 {
		return 0
	}
	return int(t.done.Load() * 100 / total)
}

// Initialize stores the training images and labels. Pixels are normalised once here; every image
// must match the input layer and every label must name an output neuron.
func (t *Trainer) Initialize(images [][]byte, labels []byte) error {
	if len(images) == 0 {
		return errors.Wrap(ErrInvalidData, "no images")
	}
	if len(images) != len(labels) {
		return errors.Wrapf(ErrInvalidData, "%d images but %d labels", len(images), len(labels))
	}

	data := make([][]float64, len(images))
	for i, img := range images {
		if len(img) != t.net.InputSize() {
			return errors.Wrapf(nn.ErrShapeMismatch, "image %d has %d pixels, input layer has %d neurons", i, len(img), t.net.InputSize())
		}
		if int(labels[i]) >= t.net.OutputSize() {
			return errors.Wrapf(ErrInvalidData, "label %d of image %d has no output neuron", labels[i], i)
		}
		data[i] = make([]float64, len(img))
		t.normalize(img, data[i])
	}

	t.data = data
	t.labels = append([]byte(nil), labels...)
	t.order = make([]int, len(images))
	for i := range t.order {
		t.order[i] = i
	}
	t.done.Store(0)
	t.total.Store(int64(len(images)))
	return nil
}

// normalize maps pixels to [0,1] when the first hidden layer is Sigmoid and to [-1,1] otherwise.
func (t *Trainer) normalize(pixels []byte, dst []float64) {
	sigmoid := t.net.Layer(1).Kind() == nn.Sigmoid
	for i, p := range pixels {
		if sigmoid {
			dst[i] = float64(p) / 255
		} else {
			dst[i] = float64(p)/127.5 - 1
		}
	}
}

// encodeTarget writes a one-hot vector for label. A Tanh output layer uses -1 for the other
// classes, every other kind 0.
func (t *Trainer) encodeTarget(label byte) []float64 {
	off := 0.0
	if t.net.Layer(t.net.Layers()-1).Kind() == nn.Tanh {
		off = -1
	}
	for i := range t.target {
		t.target[i] = off
	}
	t.target[label] = 1
	return t.target
}

func (t *Trainer) shuffle() {
	rng := t.net.Rand()
	rng.Shuffle(len(t.order), func(i, j int) {
		t.order[i], t.order[j] = t.order[j], t.order[i]
	})
}

// stopped polls the stop flag and the context.
func (t *Trainer) stopped(ctx context.Context) bool {
	return t.stop.Load() || ctx.Err() != nil
}

func (t *Trainer) progress(done int) {
	t.done.Store(int64(done))
	if t.hook != nil {
		t.hook(done, len(t.order))
	}
}

func (t *Trainer) beginEpoch() error {
	if t.data == nil {
		return ErrNotInitialized
	}
	t.done.Store(0)
	t.shuffle()
	return nil
}

func (t *Trainer) endEpoch() error {
	t.net.ResetDropoutMasks()
	if t.cfg.CheckNumerics {
		return t.net.CheckFinite()
	}
	return nil
}

func (t *Trainer) forward(idx int) error {
	start := time.Now()
	if err := t.net.SetInput(t.data[idx]); err != nil {
		return err
	}
	t.net.GenerateDropoutMasks(t.cfg.AllowBiasDrop)
	t.net.FeedForward()
	if t.stats != nil {
		t.stats.ForwardPassTime += time.Since(start)
	}
	return nil
}

// TrainEpoch runs one online pass over the shuffled material, updating the weights after every
// sample. A stop request or a cancelled ctx ends the epoch early without error; updates already
// applied are kept.
func (t *Trainer) TrainEpoch(ctx context.Context) error {
	if err := t.beginEpoch(); err != nil {
		return err
	}
	lr, momentum, decay := t.net.HyperParameters()
	n := len(t.order)

	for i, idx := range t.order {
		if t.stopped(ctx) {
			break
		}
		if err := t.forward(idx); err != nil {
			return err
		}
		start := time.Now()
		if err := t.net.Backpropagation(t.encodeTarget(t.labels[idx]), lr, momentum, decay, n); err != nil {
			return err
		}
		if t.stats != nil {
			t.stats.BackwardPassTime += time.Since(start)
		}
		t.progress(i + 1)
	}
	return t.endEpoch()
}

// TrainEpochMinibatch runs one pass in batches of batchSize samples with one weight update per
// batch. The last batch may be smaller and is applied with its real size. The stop flag and ctx
// are polled between batches.
func (t *Trainer) TrainEpochMinibatch(ctx context.Context, batchSize int) error {
	if batchSize <= 0 {
		return errors.Wrapf(nn.ErrInvalidBatchSize, "got %d", batchSize)
	}
	if err := t.beginEpoch(); err != nil {
		return err
	}
	lr, momentum, decay := t.net.HyperParameters()
	n := len(t.order)
	t.net.ResetGradientAccumulators()

	for lo := 0; lo < n; lo += batchSize {
		if t.stopped(ctx) {
			break
		}
		hi := lo + batchSize
		if hi > n {
			hi = n
		}

		t.net.ClearMinibatchErrorBuffers()
		for _, idx := range t.order[lo:hi] {
			if err := t.forward(idx); err != nil {
				return err
			}
			start := time.Now()
			if err := t.net.AccumulateMinibatchError(t.encodeTarget(t.labels[idx])); err != nil {
				return err
			}
			if t.stats != nil {
				t.stats.BackwardPassTime += time.Since(start)
			}
		}

		start := time.Now()
		if err := t.net.ApplyMinibatchUpdate(lr, momentum, decay, hi-lo, n); err != nil {
			return err
		}
		if t.stats != nil {
			t.stats.UpdateTime += time.Since(start)
		}
		t.progress(hi)
	}
	return t.endEpoch()
}

// Classify returns the index of the strongest output neuron for pixels. It returns Cancelled
// while the stop flag is set and Rejected for an image of the wrong size. Weights are never
// changed and dropout is not applied.
func (t *Trainer) Classify(pixels []byte) int {
	if t.stop.Load() {
		return Cancelled
	}
	if len(pixels) != t.net.InputSize() {
		return Rejected
	}
	t.net.ResetDropoutMasks()
	t.normalize(pixels, t.input)
	if err := t.net.SetInput(t.input); err != nil {
		return Rejected
	}
	t.net.FeedForward()
	return t.net.ArgMax()
}

// Score classifies every image and returns how many match their label. It returns
// ErrCancelled as soon as Classify reports a stop request.
func (t *Trainer) Score(images [][]byte, labels []byte) (int, error) {
	if len(images) != len(labels) {
		return 0, errors.Wrapf(ErrInvalidData, "%d images but %d labels", len(images), len(labels))
	}
	correct := 0
	for i, img := range images {
		switch got := t.Classify(img); got {
		case Cancelled:
			return correct, ErrCancelled
		case Rejected:
			return correct, errors.Wrapf(nn.ErrShapeMismatch, "image %d has %d pixels", i, len(img))
		case int(labels[i]):
			correct++
		}
	}
	return correct, nil
}
