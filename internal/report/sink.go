package report

import (
	"context"
	"errors"
	"fmt"

	"conn-guard/internal/model"
)

// Sink persists the report of a closed window
type Sink interface {
	Name() string
	WriteReport(ctx context.Context, report *model.WindowReport) error
}

// MultiSink writes to every sink and joins their errors. One failing sink
// does not keep the others from receiving the report.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Add(sink Sink) {
	m.sinks = append(m.sinks, sink)
}

func (m *MultiSink) Name() string {
	return "multi"
}

func (m *MultiSink) WriteReport(ctx context.Context, report *model.WindowReport) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.WriteReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
