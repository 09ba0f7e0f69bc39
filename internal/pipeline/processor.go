package pipeline

import (
	"context"
	"time"

	"conn-guard/internal/alert"
	"conn-guard/internal/client"
	"conn-guard/internal/enforcement"
	"conn-guard/internal/model"
	"conn-guard/internal/rules"
	"conn-guard/internal/source"
	"conn-guard/internal/window"

	"github.com/sirupsen/logrus"
)

// AlertEmitter accepts alerts for asynchronous delivery. Emit must not block.
type AlertEmitter interface {
	Emit(alert model.Alert) bool
}

// Processor runs one raw line through parse, accumulate, detect and enforce
type Processor struct {
	parser      *source.Parser
	engine      *rules.Engine
	coordinator *enforcement.Coordinator
	alerts      AlertEmitter
	metrics     *client.PrometheusMetrics
	logger      *logrus.Logger
	now         func() time.Time
}

func NewProcessor(parser *source.Parser, engine *rules.Engine, coordinator *enforcement.Coordinator, alerts AlertEmitter, metrics *client.PrometheusMetrics, logger *logrus.Logger) *Processor {
	if parser == nil {
		parser = source.NewParser(source.DefaultDelimiter)
	}
	return &Processor{
		parser:      parser,
		engine:      engine,
		coordinator: coordinator,
		alerts:      alerts,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Process handles one line in w. Malformed lines are counted and skipped.
// The only error is a window that is no longer open.
func (p *Processor) Process(ctx context.Context, w *window.Window, line string) error {
	record, ok := p.parser.Parse(line)
	if !ok {
		w.RecordDropped()
		if p.metrics != nil {
			p.metrics.RecordDropped()
		}
		return nil
	}

	count, err := w.Observe(record.Source)
	if err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordParsed()
	}

	detections := p.engine.Evaluate(ctx, record, count)
	w.RecordDetections(len(detections))

	for _, d := range detections {
		if p.metrics != nil {
			p.metrics.RecordDetection(d)
		}

		if p.alerts != nil {
			p.alerts.Emit(alert.FromDetection(d, w.ID(), p.now()))
		}

		if d.Kind != model.DetectionKind_RATE_ANOMALY || p.coordinator == nil {
			continue
		}

		blocks, err := w.Blocks()
		if err != nil {
			return err
		}
		outcome := p.coordinator.OnRateDetection(ctx, blocks, d)
		w.RecordOutcome(outcome)
		if outcome.Attempted() && p.metrics != nil {
			p.metrics.RecordEnforcement(outcome)
		}
	}

	return nil
}
