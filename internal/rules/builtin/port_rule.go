package builtin

import (
	"context"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// SuspiciousPortRule flags every record whose port is in the configured set.
// It is stateless: each matching record is reported on its own.
type SuspiciousPortRule struct {
	name     string
	enabled  bool
	severity string
	ports    model.PortSet
	logger   *logrus.Logger
}

func NewSuspiciousPortRule(enabled bool, severity string, ports model.PortSet, logger *logrus.Logger) *SuspiciousPortRule {
	if ports == nil {
		ports = model.NewPortSet()
	}
	return &SuspiciousPortRule{
		name:     "suspicious_port",
		enabled:  enabled,
		severity: severity,
		ports:    ports,
		logger:   logger,
	}
}

func (r *SuspiciousPortRule) Name() string {
	return r.name
}

func (r *SuspiciousPortRule) IsEnabled() bool {
	return r.enabled
}

func (r *SuspiciousPortRule) Evaluate(ctx context.Context, record *model.ConnectionRecord, count int) *model.Detection {
	if !r.enabled || record == nil || !r.ports.Contains(record.Port) {
		return nil
	}

	r.logger.Debugf("[Suspicious Port] source: %s | port: %d", record.Source, record.Port)

	return &model.Detection{
		Kind:     model.DetectionKind_PORT_ANOMALY,
		Rule:     r.name,
		Severity: r.severity,
		Source:   record.Source,
		Port:     record.Port,
	}
}
