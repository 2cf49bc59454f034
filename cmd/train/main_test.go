package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlp_lib/nn"
	"mlp_lib/utils"
)

func TestTrainerConfigCarriesFlags(t *testing.T) {
	saved := []string{*arch, *act}
	savedDrop, savedBias, savedNum := *dropout, *biasDrop, *numerics
	t.Cleanup(func() {
		*arch, *act = saved[0], saved[1]
		*dropout, *biasDrop, *numerics = savedDrop, savedBias, savedNum
	})

	*arch, *act = "12 6 3", "input sigmoid sigmoid"
	*dropout, *biasDrop, *numerics = 0.3, true, true

	cfg, err := buildConfig()
	require.NoError(t, err)
	tc := trainerConfig(cfg)
	assert.True(t, tc.AllowBiasDrop)
	assert.True(t, tc.CheckNumerics)
	assert.Equal(t, []float64{0, 0.3, 0}, tc.Dropout)
	assert.Equal(t, []int{12, 6, 3}, tc.Topology.Sizes)
}

func TestRunRecordsTrainingScore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	saved, savedVerbose := *resultsOut, utils.Verbose
	t.Cleanup(func() { *resultsOut, utils.Verbose = saved, savedVerbose })
	*resultsOut = path
	utils.Verbose = false

	cfg := &utils.Config{
		Architecture: []int{12, 6, 3},
		Activations:  []nn.ActivationKind{nn.InputLayer, nn.Sigmoid, nn.Sigmoid},
		LearningRate: 0.5,
		Epochs:       2,
		Seed:         1,
		Samples:      200,
	}
	require.NoError(t, utils.ValidateConfig(cfg))
	require.NoError(t, run(context.Background(), cfg))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for _, row := range rows[1:] {
		trainCorrect, err := strconv.Atoi(row[4])
		require.NoError(t, err)
		assert.Positive(t, trainCorrect)
		assert.LessOrEqual(t, trainCorrect, 160)
	}
}
