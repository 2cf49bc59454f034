package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ResultsHeader is the first row of a results file.
var ResultsHeader = []string{"run_id", "timestamp", "network", "epoch", "train_correct", "test_correct", "test_total", "accuracy", "epoch_us"}

// EpochResult is one row of a results file.
type EpochResult struct {
	RunID        uuid.UUID
	Time         time.Time
	Network      string
	Epoch        int
	TrainCorrect int
	TestCorrect  int
	TestTotal    int
	EpochTime    time.Duration
}

// Accuracy returns TestCorrect/TestTotal, or 0 for an empty test set.
func (r EpochResult) Accuracy() float64 {
	if r.TestTotal == 0 {
		return 0
	}
	return float64(r.TestCorrect) / float64(r.TestTotal)
}

func (r EpochResult) record() []string {
	return []string{
		r.RunID.String(),
		r.Time.UTC().Format(time.RFC3339),
		r.Network,
		strconv.Itoa(r.Epoch),
		strconv.Itoa(r.TrainCorrect),
		strconv.Itoa(r.TestCorrect),
		strconv.Itoa(r.TestTotal),
		strconv.FormatFloat(r.Accuracy(), 'f', 4, 64),
		strconv.FormatFloat(DurationUS(r.EpochTime), 'f', 0, 64),
	}
}

// AppendResult appends r to the CSV file at path, writing the header first when the file is new.
func AppendResult(path string, r EpochResult) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "open results file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat results file")
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(ResultsHeader); err != nil {
			return errors.Wrap(err, "write header")
		}
	}
	if err := w.Write(r.record()); err != nil {
		return errors.Wrap(err, "write result")
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flush results")
}
