package window

import (
	"errors"
	"fmt"
	"time"

	"conn-guard/internal/model"
)

var ErrWindowNotOpen = errors.New("window is not open")

type State int32

const (
	State_OPEN    State = 0
	State_CLOSING State = 1
	State_CLOSED  State = 2
)

func (s State) String() string {
	switch s {
	case State_OPEN:
		return "OPEN"
	case State_CLOSING:
		return "CLOSING"
	case State_CLOSED:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Window owns the accumulator and block record of one observation pass.
// It moves Open -> Closing -> Closed and is never reopened. A Window is
// used by a single goroutine.
type Window struct {
	id        uint64
	state     State
	startedAt time.Time
	acc       *Accumulator
	blocks    *model.BlockRecord
	outcomes  []model.EnforcementOutcome
	dropped   int
	detected  int
	report    *model.WindowReport
	now       func() time.Time
}

func New(id uint64) *Window {
	return newWithClock(id, time.Now)
}

func newWithClock(id uint64, now func() time.Time) *Window {
	return &Window{
		id:        id,
		state:     State_OPEN,
		startedAt: now(),
		acc:       NewAccumulator(),
		blocks:    model.NewBlockRecord(),
		now:       now,
	}
}

func (w *Window) ID() uint64 {
	return w.id
}

func (w *Window) State() State {
	return w.state
}

// Observe counts one valid record and returns the source's new count
func (w *Window) Observe(source string) (int, error) {
	if w.state != State_OPEN {
		return 0, fmt.Errorf("observe %s in window %d: %w", source, w.id, ErrWindowNotOpen)
	}
	return w.acc.Observe(source), nil
}

// Count returns the current count of source
func (w *Window) Count(source string) int {
	if w.acc == nil {
		return 0
	}
	return w.acc.Count(source)
}

// Blocks is the block record of this window. It must only be mutated while
// the window is open.
func (w *Window) Blocks() (*model.BlockRecord, error) {
	if w.state != State_OPEN {
		return nil, fmt.Errorf("block record of window %d: %w", w.id, ErrWindowNotOpen)
	}
	return w.blocks, nil
}

// RecordOutcome keeps an enforcement outcome for the report
func (w *Window) RecordOutcome(o model.EnforcementOutcome) {
	if o.Attempted() {
		w.outcomes = append(w.outcomes, o)
	}
}

func (w *Window) RecordDropped() {
	w.dropped++
}

func (w *Window) RecordDetections(n int) {
	w.detected += n
}

// Close stops accepting records and builds the report. Calling Close again
// while Closing returns the same report.
func (w *Window) Close() (*model.WindowReport, error) {
	switch w.state {
	case State_CLOSING:
		return w.report, nil
	case State_CLOSED:
		return nil, fmt.Errorf("close window %d: already closed", w.id)
	}

	w.state = State_CLOSING
	w.report = &model.WindowReport{
		WindowID:   w.id,
		StartedAt:  w.startedAt,
		ClosedAt:   w.now(),
		Entries:    Report(w.acc),
		Outcomes:   w.outcomes,
		Records:    w.acc.Total(),
		Dropped:    w.dropped,
		Detections: w.detected,
	}
	return w.report, nil
}

// Finish marks the window Closed once its report was handed to the sinks
func (w *Window) Finish() error {
	if w.state != State_CLOSING {
		return fmt.Errorf("finish window %d in state %s", w.id, w.state)
	}
	w.state = State_CLOSED
	w.acc = nil
	w.blocks = nil
	return nil
}
