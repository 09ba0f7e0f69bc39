package builtin

import (
	"context"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// ConnectionRateRule fires on every record of a source whose window count is
// above maxConnections, not only at the crossing. Deduplication belongs to
// the enforcement layer.
type ConnectionRateRule struct {
	name           string
	enabled        bool
	severity       string
	maxConnections int
	logger         *logrus.Logger
}

func NewConnectionRateRule(enabled bool, severity string, maxConnections int, logger *logrus.Logger) *ConnectionRateRule {
	if maxConnections < 0 {
		maxConnections = 0
	}
	return &ConnectionRateRule{
		name:           "connection_rate",
		enabled:        enabled,
		severity:       severity,
		maxConnections: maxConnections,
		logger:         logger,
	}
}

func (r *ConnectionRateRule) Name() string {
	return r.name
}

func (r *ConnectionRateRule) IsEnabled() bool {
	return r.enabled
}

func (r *ConnectionRateRule) MaxConnections() int {
	return r.maxConnections
}

func (r *ConnectionRateRule) Evaluate(ctx context.Context, record *model.ConnectionRecord, count int) *model.Detection {
	if !r.enabled || record == nil || count <= r.maxConnections {
		return nil
	}

	r.logger.Debugf("[Connection Rate] source: %s | count: %d (threshold: %d)", record.Source, count, r.maxConnections)

	return &model.Detection{
		Kind:     model.DetectionKind_RATE_ANOMALY,
		Rule:     r.name,
		Severity: r.severity,
		Source:   record.Source,
		Count:    count,
	}
}
