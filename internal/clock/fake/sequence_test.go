package fake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSequenceCumulativeOffsets verifies offsets accumulate from the base.
func TestSequenceCumulativeOffsets(t *testing.T) {
	t.Parallel()

	base := time.UnixMilli(1_000_000)
	seq := NewSequence(base, 0, time.Second, 4*time.Second)

	require.Equal(t, int64(1_000_000), seq.NowMillis())
	require.Equal(t, int64(1_001_000), seq.NowMillis())
	require.Equal(t, int64(1_005_000), seq.NowMillis())
}

// TestSequenceRepeatsLast verifies the final timestamp is sticky.
func TestSequenceRepeatsLast(t *testing.T) {
	t.Parallel()

	seq := NewSequence(time.UnixMilli(0), 0, 10*time.Millisecond)
	seq.NowMillis()
	require.Equal(t, int64(10), seq.NowMillis())
	require.Equal(t, int64(10), seq.NowMillis())
	require.Equal(t, time.UnixMilli(10).UTC(), seq.Now())
}

// TestSequenceNoOffsets falls back to the base time.
func TestSequenceNoOffsets(t *testing.T) {
	t.Parallel()

	seq := NewSequence(time.UnixMilli(42))
	require.Equal(t, int64(42), seq.NowMillis())
	require.Equal(t, int64(42), seq.NowMillis())
}

// TestTickerAdvances verifies each reading moves forward by one step.
func TestTickerAdvances(t *testing.T) {
	t.Parallel()

	tick := NewTicker(time.UnixMilli(100), 250*time.Millisecond)
	require.Equal(t, int64(100), tick.NowMillis())
	require.Equal(t, int64(350), tick.NowMillis())
	require.Equal(t, int64(600), tick.NowMillis())
}
