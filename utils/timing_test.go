package utils

import (
	"bytes"
	"math"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDurationUS(t *testing.T) {
	d := 1234*time.Microsecond + 567*time.Nanosecond
	got := DurationUS(d)
	if math.Abs(got-1234.567) > 0.001 {
		t.Fatalf("want 1234.567µs, got %.3f", got)
	}
}

func TestPrintTimingStats(t *testing.T) {
	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout; Verbose = true }()

	stats := &TimingStats{TotalTime: 4 * time.Second, ForwardPassTime: time.Second, BackwardPassTime: 2 * time.Second}
	PrintTimingStats(stats, 10)
	out := buf.String()
	if !strings.Contains(out, "Forward pass: 1s (25.0%)") {
		t.Errorf("missing forward share in:\n%s", out)
	}
	if !strings.Contains(out, "Average backward pass time: 200ms") {
		t.Errorf("missing backward average in:\n%s", out)
	}

	buf.Reset()
	Verbose = false
	PrintTimingStats(stats, 10)
	Progressf("epoch %d\n", 1)
	if buf.Len() != 0 {
		t.Errorf("printed %q with Verbose off", buf.String())
	}

	Verbose = true
	Progressf("epoch %d\n", 2)
	if buf.String() != "epoch 2\n" {
		t.Errorf("Progressf wrote %q", buf.String())
	}
}

func TestPrintTimingStatsEmpty(t *testing.T) {
	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout }()

	PrintTimingStats(&TimingStats{}, 0)
	if !strings.Contains(buf.String(), "(0.0%)") {
		t.Errorf("zero total should print 0%%, got:\n%s", buf.String())
	}
}
