package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"conn-guard/internal/client"
	"conn-guard/internal/model"
	"conn-guard/internal/report"
	"conn-guard/internal/source"
	"conn-guard/internal/window"

	"github.com/sirupsen/logrus"
)

// WindowConfig bounds one window. A window closes when the stream is
// exhausted, after MaxRecords lines or after Duration, whichever comes first.
// Zero disables a bound.
type WindowConfig struct {
	MaxRecords int
	Duration   time.Duration
}

type Runner struct {
	src       source.Source
	processor *Processor
	sink      report.Sink
	config    WindowConfig
	metrics   *client.PrometheusMetrics
	logger    *logrus.Logger
}

func NewRunner(src source.Source, processor *Processor, sink report.Sink, config WindowConfig, metrics *client.PrometheusMetrics, logger *logrus.Logger) *Runner {
	return &Runner{
		src:       src,
		processor: processor,
		sink:      sink,
		config:    config,
		metrics:   metrics,
		logger:    logger,
	}
}

// RunWindow processes one window and hands its report to the sink. Sink
// errors are logged only. A source that cannot be opened or read aborts the
// window with an error matching source.ErrSourceUnavailable and no report.
// When ctx is cancelled the partial window is still reported and ctx.Err()
// is returned with it.
func (r *Runner) RunWindow(ctx context.Context, id uint64) (*model.WindowReport, error) {
	started := time.Now()

	stream, err := r.src.Open(ctx)
	if err != nil {
		r.sourceError(err)
		return nil, fmt.Errorf("window %d: %w", id, err)
	}
	defer stream.Close()

	w := window.New(id)
	r.logger.Debugf("Window %d opened on %s", id, r.src.Name())

	windowCtx := ctx
	if r.config.Duration > 0 {
		var cancel context.CancelFunc
		windowCtx, cancel = context.WithTimeout(ctx, r.config.Duration)
		defer cancel()
	}

	var runErr error
	lines := 0
	for r.config.MaxRecords <= 0 || lines < r.config.MaxRecords {
		line, err := stream.Next(windowCtx)
		if err != nil {
			runErr = r.boundary(ctx, err)
			break
		}
		lines++

		// The window deadline only bounds reading; a block already started
		// runs under the coordinator's own timeout.
		if err := r.processor.Process(ctx, w, line); err != nil {
			runErr = err
			break
		}
	}

	if runErr != nil && errors.Is(runErr, source.ErrSourceUnavailable) {
		r.sourceError(runErr)
		w.Close()
		w.Finish()
		return nil, fmt.Errorf("window %d: %w", id, runErr)
	}

	rep, err := w.Close()
	if err != nil {
		return nil, err
	}

	if r.sink != nil {
		if err := r.sink.WriteReport(context.WithoutCancel(ctx), rep); err != nil {
			r.logger.Errorf("Failed to write report of window %d: %v", id, err)
		}
	}
	if r.metrics != nil {
		r.metrics.RecordWindow(rep, time.Since(started))
	}

	if err := w.Finish(); err != nil {
		return rep, err
	}

	r.logger.Infof("Window %d closed: %d records, %d sources, %d dropped, %d detections, %d enforcement attempts",
		id, rep.Records, len(rep.Entries), rep.Dropped, rep.Detections, len(rep.Outcomes))

	return rep, runErr
}

// boundary maps a stream error to the window result. Exhaustion and the
// window deadline close the window normally.
func (r *Runner) boundary(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, source.ErrSourceUnavailable):
		return err
	default:
		return &source.UnavailableError{Source: r.src.Name(), Err: err}
	}
}

func (r *Runner) sourceError(err error) {
	if r.metrics != nil {
		r.metrics.RecordSourceError("unavailable")
	}
	r.logger.Errorf("Record source %s failed: %v", r.src.Name(), err)
}

// Run processes windows until iterations windows are done (0 means until ctx
// is cancelled), waiting interval between them. Window ids start at firstID.
// Cancellation ends the run without an error.
func (r *Runner) Run(ctx context.Context, iterations int, interval time.Duration, firstID uint64) error {
	id := firstID
	for i := 0; iterations <= 0 || i < iterations; i++ {
		_, err := r.RunWindow(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		id++

		if iterations > 0 && i == iterations-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
	return nil
}
