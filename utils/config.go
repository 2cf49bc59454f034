package utils

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"mlp_lib/nn"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds training configuration
type Config struct {
	Architecture []int
	Activations  []nn.ActivationKind
	Cost         nn.CostKind

	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Dropout      float64

	// AllowBiasDrop lets dropout masks cover bias neurons.
	AllowBiasDrop bool
	CheckNumerics bool

	// BatchSize 0 selects online training.
	BatchSize int
	Epochs    int
	Seed      uint64
	Gaussian  bool

	TrainImages string
	TrainLabels string
	TestImages  string
	TestLabels  string
	Samples     int
}

// ParseArchitecture parses architecture string into slice of integers
func ParseArchitecture(archStr string) ([]int, error) {
	archParts := strings.Fields(archStr)
	arch := make([]int, len(archParts))
	for i, s := range archParts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidConfig, "layer size %q", s)
		}
		arch[i] = n
	}
	return arch, nil
}

// ParseActivations parses a space separated list of activation names, one per layer.
func ParseActivations(actStr string) ([]nn.ActivationKind, error) {
	names := strings.Fields(actStr)
	kinds := make([]nn.ActivationKind, len(names))
	for i, name := range names {
		k, err := nn.ParseActivation(name)
		if err != nil {
			return nil, err
		}
		kinds[i] = k
	}
	return kinds, nil
}

// ValidateConfig validates training configuration
func ValidateConfig(config *Config) error {
	if len(config.Architecture) < 2 {
		return errors.Wrap(ErrInvalidConfig, "architecture must have at least 2 layers (input and output)")
	}

	if len(config.Activations) != len(config.Architecture) {
		return errors.Wrapf(ErrInvalidConfig, "%d activations for %d layers", len(config.Activations), len(config.Architecture))
	}

	if config.LearningRate <= 0 {
		return errors.Wrap(ErrInvalidConfig, "learning rate must be positive")
	}

	if config.Momentum < 0 || config.WeightDecay < 0 {
		return errors.Wrap(ErrInvalidConfig, "momentum and weight decay cannot be negative")
	}

	if config.Dropout < 0 || config.Dropout > 1 {
		return errors.Wrap(ErrInvalidConfig, "dropout must be in [0,1]")
	}

	if config.Dropout > 0 && len(config.Architecture) < 3 {
		return errors.Wrap(ErrInvalidConfig, "dropout needs at least one hidden layer")
	}

	if config.BatchSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "batch size cannot be negative")
	}

	if config.Epochs <= 0 {
		return errors.Wrap(ErrInvalidConfig, "epochs must be positive")
	}

	if (config.TrainImages == "") != (config.TrainLabels == "") {
		return errors.Wrap(ErrInvalidConfig, "training images and labels must be given together")
	}

	if (config.TestImages == "") != (config.TestLabels == "") {
		return errors.Wrap(ErrInvalidConfig, "test images and labels must be given together")
	}

	if config.TrainImages == "" && config.Samples <= 0 {
		return errors.Wrap(ErrInvalidConfig, "synthetic runs need a positive sample count")
	}

	return nil
}

// Topology converts the configuration into a network topology.
func (c *Config) Topology() nn.Topology {
	return nn.Topology{
		Sizes:       c.Architecture,
		Activations: c.Activations,
		Cost:        c.Cost,
		Seed:        c.Seed,
	}
}

// DropoutPerLayer spreads the configured dropout probability over the hidden layers.
func (c *Config) DropoutPerLayer() []float64 {
	if c.Dropout == 0 {
		return nil
	}
	p := make([]float64, len(c.Architecture))
	for i := 1; i < len(p)-1; i++ {
		p[i] = c.Dropout
	}
	return p
}
