package annotations

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusHandler logs every event as a structured logrus entry. Evaluation
// failures log at warn level, errors at error level, everything else at
// debug level.
func LogrusHandler(logger logrus.FieldLogger) Handler {
	return func(event Event) {
		fields := make(logrus.Fields, len(event.Data)+2)
		for k, v := range event.Data {
			fields[k] = v
		}
		fields["event"] = event.Name
		fields["latency"] = event.Latency

		entry := logger.WithFields(fields)
		switch {
		case event.Name == EvalFailed:
			entry.Warn("evaluation failed")
		case strings.HasPrefix(event.Name, "error/"):
			entry.Error("query error")
		case event.Name == QueryComplete:
			if success, _ := event.Data["success"].(bool); !success {
				entry.Error("query failed")
				return
			}
			entry.Info("query completed")
		default:
			entry.Debug(event.Name)
		}
	}
}
