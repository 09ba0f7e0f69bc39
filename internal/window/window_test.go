package window

import (
	"testing"
	"time"

	"conn-guard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, 0, acc.Count("10.0.0.1"))

	assert.Equal(t, 1, acc.Observe("10.0.0.1"))
	assert.Equal(t, 1, acc.Observe("10.0.0.2"))
	assert.Equal(t, 2, acc.Observe("10.0.0.1"))
	assert.Equal(t, 3, acc.Observe("10.0.0.1"))

	assert.Equal(t, 3, acc.Count("10.0.0.1"))
	assert.Equal(t, 1, acc.Count("10.0.0.2"))
	assert.Equal(t, 0, acc.Count("10.0.0.3"))
	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, 4, acc.Total())
}

func TestReport(t *testing.T) {
	acc := NewAccumulator()
	for _, src := range []string{"b", "a", "b", "c", "a", "b"} {
		acc.Observe(src)
	}

	entries := Report(acc)
	require.Len(t, entries, 3)

	counts := model.WindowReport{Entries: entries}.Counts()
	assert.Equal(t, map[string]int{"a": 2, "b": 3, "c": 1}, counts)

	// Every source appears exactly once
	seen := make(map[string]bool)
	for _, e := range entries {
		assert.False(t, seen[e.Source], e.Source)
		seen[e.Source] = true
	}

	// Unmutated accumulator yields an identical report
	assert.Equal(t, entries, Report(acc))
	assert.Equal(t, 6, acc.Total())
}

func TestReportEmpty(t *testing.T) {
	entries := Report(NewAccumulator())
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestWindowLifecycle(t *testing.T) {
	clock := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	w := newWithClock(7, func() time.Time { return clock })

	assert.Equal(t, uint64(7), w.ID())
	assert.Equal(t, State_OPEN, w.State())

	count, err := w.Observe("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = w.Observe("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, w.Count("10.0.0.1"))

	blocks, err := w.Blocks()
	require.NoError(t, err)
	blocks.Add("10.0.0.1")

	w.RecordDropped()
	w.RecordDetections(2)
	w.RecordOutcome(model.EnforcementOutcome{Source: "10.0.0.1", Status: model.EnforcementStatus_BLOCKED})
	w.RecordOutcome(model.EnforcementOutcome{Source: "10.0.0.1", Status: model.EnforcementStatus_NOOP})

	clock = clock.Add(time.Minute)
	rep, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, State_CLOSING, w.State())
	assert.Equal(t, uint64(7), rep.WindowID)
	assert.Equal(t, []model.ReportEntry{{Source: "10.0.0.1", Count: 2}}, rep.Entries)
	assert.Equal(t, 2, rep.Records)
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 2, rep.Detections)
	require.Len(t, rep.Outcomes, 1)
	assert.Equal(t, model.EnforcementStatus_BLOCKED, rep.Outcomes[0].Status)
	assert.Equal(t, time.Minute, rep.ClosedAt.Sub(rep.StartedAt))

	// Closing twice hands back the same report
	again, err := w.Close()
	require.NoError(t, err)
	assert.Same(t, rep, again)

	_, err = w.Observe("10.0.0.2")
	assert.ErrorIs(t, err, ErrWindowNotOpen)
	_, err = w.Blocks()
	assert.ErrorIs(t, err, ErrWindowNotOpen)

	require.NoError(t, w.Finish())
	assert.Equal(t, State_CLOSED, w.State())
	assert.Equal(t, 0, w.Count("10.0.0.1"))

	_, err = w.Close()
	assert.Error(t, err)
	assert.Error(t, w.Finish())
	_, err = w.Observe("10.0.0.1")
	assert.ErrorIs(t, err, ErrWindowNotOpen)
}

func TestWindowFinishRequiresClose(t *testing.T) {
	w := New(1)
	assert.Error(t, w.Finish())
	assert.Equal(t, State_OPEN, w.State())
}

func TestWindowsAreIndependent(t *testing.T) {
	first := New(1)
	_, err := first.Observe("10.0.0.1")
	require.NoError(t, err)
	blocks, err := first.Blocks()
	require.NoError(t, err)
	blocks.Add("10.0.0.1")

	second := New(2)
	assert.Equal(t, 0, second.Count("10.0.0.1"))
	secondBlocks, err := second.Blocks()
	require.NoError(t, err)
	assert.False(t, secondBlocks.Contains("10.0.0.1"))
}
