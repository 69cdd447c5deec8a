package alert

import (
	"strings"

	"ransomguard/internal/model"

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

// SendAlert implements Notifier interface - sends alert to logs
func (ln *LogAlertNotifier) SendAlert(alert model.Alert) error {
	ln.logger.Warnf("ALERT [%s] %s: %s (fme=%.3f abt=%.2f) %s",
		strings.ToUpper(string(alert.Severity)), alert.Category, alert.Path,
		alert.FME, alert.ABT, strings.Join(alert.Reasons, "; "))
	return nil
}
