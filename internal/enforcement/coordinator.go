package enforcement

import (
	"context"
	"time"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 10 * time.Second

// Coordinator turns rate detections into at most one backend call per
// source per window. The window's BlockRecord is passed in by the caller.
type Coordinator struct {
	backend Backend
	timeout time.Duration
	logger  *logrus.Logger
}

func NewCoordinator(backend Backend, timeout time.Duration, logger *logrus.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		backend: backend,
		timeout: timeout,
		logger:  logger,
	}
}

func (c *Coordinator) Backend() Backend {
	return c.backend
}

// OnRateDetection blocks d.Source unless blocks already holds it. The source
// is added to blocks whatever the backend returns, so a failing backend is
// not retried within the window. Backend errors are reported in the outcome,
// never returned.
func (c *Coordinator) OnRateDetection(ctx context.Context, blocks *model.BlockRecord, d model.Detection) model.EnforcementOutcome {
	outcome := model.EnforcementOutcome{Source: d.Source, Status: model.EnforcementStatus_NOOP}

	if d.Kind != model.DetectionKind_RATE_ANOMALY {
		return outcome
	}
	if !blocks.Add(d.Source) {
		c.logger.Debugf("[Enforcement] %s already handled in this window", d.Source)
		return outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.backend.Block(callCtx, d.Source); err != nil {
		c.logger.Errorf("[Enforcement] Failed to block %s via %s: %v", d.Source, c.backend.Name(), err)
		outcome.Status = model.EnforcementStatus_BLOCK_FAILED
		outcome.Reason = err.Error()
		return outcome
	}

	c.logger.Infof("[Enforcement] Blocked %s via %s (%d connections)", d.Source, c.backend.Name(), d.Count)
	outcome.Status = model.EnforcementStatus_BLOCKED
	return outcome
}
