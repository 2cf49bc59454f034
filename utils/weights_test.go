package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mlp_lib/nn"
)

func testNetwork(t *testing.T, seed uint64) *nn.Network {
	t.Helper()
	net, err := nn.NewNetwork(nn.Topology{
		Sizes:       []int{4, 3, 2},
		Activations: []nn.ActivationKind{nn.InputLayer, nn.Tanh, nn.Sigmoid},
		Seed:        seed,
	})
	require.NoError(t, err)
	net.Reset()
	return net
}

func TestSnapshotNetwork(t *testing.T) {
	net := testNetwork(t, 5)
	mw := SnapshotNetwork(net)

	if mw.Version != WeightsVersion {
		t.Errorf("Version = %s, want %s", mw.Version, WeightsVersion)
	}
	if len(mw.Layers) != 2 {
		t.Fatalf("Layers count = %d, want 2", len(mw.Layers))
	}
	if got := mw.Activations; len(got) != 3 || got[1] != "tanh" || got[2] != "sigmoid" {
		t.Errorf("Activations = %v", got)
	}

	layer1 := mw.Layers["layer1"]
	if len(layer1.Weight.Shape) != 2 || layer1.Weight.Shape[0] != 4 || layer1.Weight.Shape[1] != 3 {
		t.Errorf("layer1 weight shape = %v, want [4, 3]", layer1.Weight.Shape)
	}
	w := net.Layer(1).Weights()
	if layer1.Weight.Data[3] != w.At(1, 0) {
		t.Errorf("layer1.Weight.Data[3] = %f, want %f", layer1.Weight.Data[3], w.At(1, 0))
	}
	for j, b := range layer1.Bias.Data {
		if b != w.At(4, j) {
			t.Errorf("layer1.Bias.Data[%d] = %f, want %f", j, b, w.At(4, j))
		}
	}
}

func TestSaveLoadRestore(t *testing.T) {
	weightsFile := filepath.Join(t.TempDir(), "test_weights.json")

	src := testNetwork(t, 1)
	require.NoError(t, SaveWeights(weightsFile, SnapshotNetwork(src)))

	loaded, err := LoadWeights(weightsFile)
	require.NoError(t, err)

	dst := testNetwork(t, 2)
	require.NoError(t, RestoreNetwork(dst, loaded))
	for i := 1; i < src.Layers(); i++ {
		if !mat.Equal(src.Layer(i).Weights(), dst.Layer(i).Weights()) {
			t.Errorf("layer %d differs after restore", i)
		}
	}
}

func TestRestoreNetworkShapeMismatch(t *testing.T) {
	mw := SnapshotNetwork(testNetwork(t, 1))
	other, err := nn.NewNetwork(nn.Topology{
		Sizes:       []int{4, 5, 2},
		Activations: []nn.ActivationKind{nn.InputLayer, nn.Tanh, nn.Sigmoid},
	})
	require.NoError(t, err)

	err = RestoreNetwork(other, mw)
	if !errors.Is(err, nn.ErrShapeMismatch) {
		t.Errorf("RestoreNetwork = %v, want shape mismatch", err)
	}

	delete(mw.Layers, "layer2")
	err = RestoreNetwork(testNetwork(t, 1), mw)
	if !errors.Is(err, nn.ErrShapeMismatch) {
		t.Errorf("RestoreNetwork = %v, want shape mismatch", err)
	}
}

func TestLoadWeightsNotFound(t *testing.T) {
	_, err := LoadWeights("/nonexistent/path/weights.json")
	if err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLoadWeightsInvalidJSON(t *testing.T) {
	badFile := filepath.Join(t.TempDir(), "bad.json")
	err := os.WriteFile(badFile, []byte("not valid json"), 0644)
	if err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	_, err = LoadWeights(badFile)
	if err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
