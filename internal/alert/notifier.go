package alert

import (
	"fmt"
	"time"

	"conn-guard/internal/model"
)

// Notifier interface for alert notification
type Notifier interface {
	Name() string
	SendAlert(alert model.Alert) error
}

// FromDetection builds the notifier payload for a detection
func FromDetection(d model.Detection, windowID uint64, now time.Time) model.Alert {
	a := model.Alert{
		Type:      d.Kind.String(),
		Severity:  d.Severity,
		Source:    d.Source,
		WindowID:  windowID,
		Timestamp: now,
	}

	switch d.Kind {
	case model.DetectionKind_PORT_ANOMALY:
		port := d.Port
		a.Port = &port
		a.Message = fmt.Sprintf("Suspicious port activity from IP %s on port %d", d.Source, d.Port)
	case model.DetectionKind_RATE_ANOMALY:
		a.Count = d.Count
		a.Message = fmt.Sprintf("IP %s has too many connections (%d in this window)", d.Source, d.Count)
	default:
		a.Message = fmt.Sprintf("Anomaly from IP %s", d.Source)
	}

	return a
}
