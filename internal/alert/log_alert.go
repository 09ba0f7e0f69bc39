package alert

import (
	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// LogAlertNotifier sends alerts to local logs
type LogAlertNotifier struct {
	logger *logrus.Logger
}

// NewLogAlertNotifier creates a new log alert notifier
func NewLogAlertNotifier(logger *logrus.Logger) *LogAlertNotifier {
	return &LogAlertNotifier{
		logger: logger,
	}
}

func (ln *LogAlertNotifier) Name() string {
	return "log"
}

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	fields := logrus.Fields{
		"type":   alert.Type,
		"source": alert.Source,
		"window": alert.WindowID,
	}
	if alert.Port != nil {
		fields["port"] = *alert.Port
	}
	if alert.Count > 0 {
		fields["count"] = alert.Count
	}
	ln.logger.WithFields(fields).Warnf("ALERT [%s] %s", alert.Severity, alert.Message)
	return nil
}
