package utils

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlp_lib/nn"
)

func validConfig() *Config {
	return &Config{
		Architecture: []int{784, 30, 10},
		Activations:  []nn.ActivationKind{nn.InputLayer, nn.Sigmoid, nn.Sigmoid},
		LearningRate: 0.3,
		Epochs:       1,
		Samples:      100,
	}
}

func TestParseArchitecture(t *testing.T) {
	arch, err := ParseArchitecture(" 784 30  10 ")
	require.NoError(t, err)
	assert.Equal(t, []int{784, 30, 10}, arch)

	_, err = ParseArchitecture("784 x 10")
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestParseActivations(t *testing.T) {
	kinds, err := ParseActivations("input tanh softmax")
	require.NoError(t, err)
	assert.Equal(t, []nn.ActivationKind{nn.InputLayer, nn.Tanh, nn.Softmax}, kinds)

	_, err = ParseActivations("input gelu")
	assert.True(t, errors.Is(err, nn.ErrInvalidActivation))
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(validConfig()))

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"one layer", func(c *Config) { c.Architecture = []int{784}; c.Activations = c.Activations[:1] }},
		{"activation count", func(c *Config) { c.Activations = c.Activations[:2] }},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"momentum", func(c *Config) { c.Momentum = -0.1 }},
		{"dropout", func(c *Config) { c.Dropout = 1.5 }},
		{"dropout without hidden layer", func(c *Config) {
			c.Architecture = []int{784, 10}
			c.Activations = c.Activations[:2]
			c.Dropout = 0.5
		}},
		{"batch", func(c *Config) { c.BatchSize = -1 }},
		{"epochs", func(c *Config) { c.Epochs = 0 }},
		{"train pair", func(c *Config) { c.TrainImages = "images" }},
		{"test pair", func(c *Config) { c.TestLabels = "labels" }},
		{"samples", func(c *Config) { c.Samples = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			assert.True(t, errors.Is(ValidateConfig(c), ErrInvalidConfig))
		})
	}
}

func TestConfigTopologyAndDropout(t *testing.T) {
	c := validConfig()
	c.Seed = 9
	c.Cost = nn.CrossEntropy

	top := c.Topology()
	assert.Equal(t, c.Architecture, top.Sizes)
	assert.Equal(t, nn.CrossEntropy, top.Cost)
	assert.Equal(t, uint64(9), top.Seed)

	assert.Nil(t, c.DropoutPerLayer())
	c.Dropout = 0.2
	assert.Equal(t, []float64{0, 0.2, 0}, c.DropoutPerLayer())

	c.Dropout = 1
	require.NoError(t, ValidateConfig(c))
	assert.Equal(t, []float64{0, 1, 0}, c.DropoutPerLayer())
}
