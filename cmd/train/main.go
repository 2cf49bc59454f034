// mlp-train: trains a multilayer perceptron on MNIST IDX files or on synthetic digits
//
// Usage:
//
//	mlp-train -train-images=train-images.idx3-ubyte -train-labels=train-labels.idx1-ubyte \
//	  -test-images=t10k-images.idx3-ubyte -test-labels=t10k-labels.idx1-ubyte \
//	  -arch="784 100 10" -act="input sigmoid sigmoid" -epochs=10 -lr=0.3 -momentum=0.7
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"mlp_lib/mnist"
	"mlp_lib/nn"
	"mlp_lib/trainer"
	"mlp_lib/utils"
)

var (
	trainImages  = flag.String("train-images", "", "Training image file (IDX)")
	trainLabels  = flag.String("train-labels", "", "Training label file (IDX)")
	testImages   = flag.String("test-images", "", "Test image file (IDX)")
	testLabels   = flag.String("test-labels", "", "Test label file (IDX)")
	arch         = flag.String("arch", "784 30 10", "Neurons per layer")
	act          = flag.String("act", "input sigmoid sigmoid", "Activation per layer: input, sigmoid, tanh, softmax, softplus, relu")
	cost         = flag.String("cost", "quadratic", "Cost function: quadratic, crossentropy")
	learningRate = flag.Float64("lr", 0.3, "Learning rate")
	momentum     = flag.Float64("momentum", 0.7, "Momentum")
	decay        = flag.Float64("decay", 0, "L2 weight decay")
	dropout      = flag.Float64("dropout", 0, "Dropout probability of the hidden layers")
	biasDrop     = flag.Bool("allow-bias-drop", false, "Let dropout suppress bias neurons")
	numerics     = flag.Bool("check-numerics", false, "Fail the epoch when a weight becomes NaN or Inf")
	batch        = flag.Int("batch", 0, "Minibatch size (0 = online training)")
	epochs       = flag.Int("epochs", 5, "Number of training epochs")
	seed         = flag.Uint64("seed", 42, "Random seed")
	gaussian     = flag.Bool("gaussian", false, "Gaussian weight initialisation instead of uniform")
	samples      = flag.Int("samples", 2000, "Number of synthetic samples when no files are given")
	weightsOut   = flag.String("weights-out", "", "Output weights file (JSON)")
	resultsOut   = flag.String("results", "", "CSV file to append per-epoch results to")
	verbose      = flag.Bool("verbose", true, "Verbose output")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal(err)
	}
}

func buildConfig() (*utils.Config, error) {
	sizes, err := utils.ParseArchitecture(*arch)
	if err != nil {
		return nil, err
	}
	kinds, err := utils.ParseActivations(*act)
	if err != nil {
		return nil, err
	}
	c, err := nn.ParseCost(*cost)
	if err != nil {
		return nil, err
	}

	cfg := &utils.Config{
		Architecture: sizes,
		Activations:  kinds,
		Cost:         c,
		LearningRate: *learningRate,
		Momentum:     *momentum,
		WeightDecay:  *decay,
		Dropout:      *dropout,
		BatchSize:    *batch,
		Epochs:       *epochs,
		Seed:         *seed,
		Gaussian:     *gaussian,
		TrainImages:  *trainImages,
		TrainLabels:  *trainLabels,
		TestImages:   *testImages,
		TestLabels:   *testLabels,
		Samples:      *samples,

		AllowBiasDrop: *biasDrop,
		CheckNumerics: *numerics,
	}
	return cfg, utils.ValidateConfig(cfg)
}

func trainerConfig(cfg *utils.Config) trainer.Config {
	return trainer.Config{
		Topology:      cfg.Topology(),
		LearningRate:  cfg.LearningRate,
		Momentum:      cfg.Momentum,
		WeightDecay:   cfg.WeightDecay,
		Dropout:       cfg.DropoutPerLayer(),
		AllowBiasDrop: cfg.AllowBiasDrop,
		Gaussian:      cfg.Gaussian,
		CheckNumerics: cfg.CheckNumerics,
	}
}

func run(ctx context.Context, cfg *utils.Config) error {
	stats := &utils.TimingStats{}
	totalStart := time.Now()

	start := time.Now()
	train, test, err := loadData(cfg)
	if err != nil {
		return err
	}
	stats.DataLoadingTime = time.Since(start)

	start = time.Now()
	tr, err := trainer.New(trainerConfig(cfg))
	if err != nil {
		return err
	}
	if err := tr.Initialize(train.Images, train.Labels); err != nil {
		return err
	}
	tr.SetTimingStats(stats)
	stats.ModelInitTime = time.Since(start)

	runID := uuid.New()
	utils.Progressf("%s\n", tr.Version())
	utils.Progressf("Run:     %s\n", runID)
	utils.Progressf("Network: %s\n", tr.NetworkDescription())
	utils.Progressf("Data:    %d training, %d test samples\n\n", train.Len(), test.Len())

	go func() {
		<-ctx.Done()
		tr.SetStopFlag(true)
	}()

	trained := 0
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		epochStart := time.Now()
		if cfg.BatchSize > 0 {
			err = tr.TrainEpochMinibatch(ctx, cfg.BatchSize)
		} else {
			err = tr.TrainEpoch(ctx)
		}
		if err != nil {
			return err
		}
		trained += train.Len() * tr.WorkPercentage() / 100
		epochTime := time.Since(epochStart)
		if ctx.Err() != nil {
			utils.Progressf("Epoch %d/%d interrupted at %d%%\n", epoch, cfg.Epochs, tr.WorkPercentage())
			break
		}

		start = time.Now()
		var correct int
		trainCorrect, err := tr.Score(train.Images, train.Labels)
		if err == nil {
			correct, err = tr.Score(test.Images, test.Labels)
		}
		stats.EvaluationTime += time.Since(start)
		if errors.Is(err, trainer.ErrCancelled) {
			break
		}
		if err != nil {
			return err
		}

		result := utils.EpochResult{
			RunID:        runID,
			Time:         time.Now(),
			Network:      tr.NetworkDescription(),
			Epoch:        epoch,
			TrainCorrect: trainCorrect,
			TestCorrect:  correct,
			TestTotal:    test.Len(),
			EpochTime:    epochTime,
		}
		utils.Progressf("Epoch %d/%d | Train: %d/%d | Correct: %d/%d (%.2f%%) | Time: %.2fs\n",
			epoch, cfg.Epochs, trainCorrect, train.Len(), correct, test.Len(), result.Accuracy()*100, epochTime.Seconds())
		if *resultsOut != "" {
			if err := utils.AppendResult(*resultsOut, result); err != nil {
				return err
			}
		}
	}

	stats.TotalTime = time.Since(totalStart)
	utils.PrintTimingStats(stats, trained)

	if *weightsOut != "" {
		utils.Progressf("\nSaving weights to %s...\n", *weightsOut)
		if err := utils.SaveWeights(*weightsOut, utils.SnapshotNetwork(tr.Network())); err != nil {
			return err
		}
	}
	return nil
}

func loadData(cfg *utils.Config) (train, test *mnist.Set, err error) {
	if cfg.TrainImages == "" {
		train, test = syntheticSets(cfg.Architecture[0], cfg.Architecture[len(cfg.Architecture)-1], cfg.Samples, cfg.Seed)
		return train, test, nil
	}

	utils.Progressf("Loading %s...\n", cfg.TrainImages)
	train, err = mnist.LoadSet(cfg.TrainImages, cfg.TrainLabels, 0)
	if err != nil {
		return nil, nil, err
	}
	if cfg.TestImages == "" {
		return train, train, nil
	}
	utils.Progressf("Loading %s...\n", cfg.TestImages)
	test, err = mnist.LoadSet(cfg.TestImages, cfg.TestLabels, 0)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// syntheticSets builds noisy images where each class lights up its own band of pixels. A fifth
// of the samples is held out as the test set.
func syntheticSets(pixels, classes, n int, seed uint64) (train, test *mnist.Set) {
	rng := rand.New(rand.NewSource(seed))
	band := pixels / classes
	if band == 0 {
		band = 1
	}

	all := &mnist.Set{Images: make([][]byte, n), Labels: make([]byte, n), Rows: 1, Cols: pixels}
	for i := 0; i < n; i++ {
		label := rng.Intn(classes)
		img := make([]byte, pixels)
		for j := range img {
			img[j] = byte(rng.Intn(64))
		}
		for j := label * band; j < (label+1)*band && j < pixels; j++ {
			img[j] = byte(192 + rng.Intn(64))
		}
		all.Images[i] = img
		all.Labels[i] = byte(label)
	}

	cut := n - n/5
	train = &mnist.Set{Images: all.Images[:cut], Labels: all.Labels[:cut], Rows: 1, Cols: pixels}
	test = &mnist.Set{Images: all.Images[cut:], Labels: all.Labels[cut:], Rows: 1, Cols: pixels}
	return train, test
}
