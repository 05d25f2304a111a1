// Package log configures the shared logrus standard logger used by the
// broker, client and worker processes.
package log

import (
	"github.com/geoffjay/remus/core/config"
	logrus "github.com/sirupsen/logrus"
	"github.com/yukitsune/lokirus"
)

const timestampFormat = "2006-01-02 15:04:05"

// Initialize configures the logrus standard logger's level, formatter and
// optional Loki hook from cfg. An invalid level leaves the current level
// untouched; an empty or unrecognized formatter defaults to text.
func Initialize(cfg config.LogConfig) {
	if cfg.Level != "" {
		if level, err := logrus.ParseLevel(cfg.Level); err == nil {
			logrus.SetLevel(level)
		} else {
			logrus.WithField("level", cfg.Level).Warn("invalid log level, leaving unchanged")
		}
	}

	switch cfg.Formatter {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
		})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	if cfg.Loki.Address != "" {
		hook := lokirus.NewLokiHookWithOpts(
			cfg.Loki.Address,
			lokirus.NewLokiHookOptions().WithLevelMap(lokirus.LevelMap{
				logrus.InfoLevel:  "info",
				logrus.WarnLevel:  "warning",
				logrus.ErrorLevel: "error",
				logrus.FatalLevel: "fatal",
			}).WithStaticLabels(lokirus.Labels(cfg.Loki.Labels)),
			logrus.InfoLevel,
			logrus.WarnLevel,
			logrus.ErrorLevel,
			logrus.FatalLevel,
		)
		logrus.AddHook(hook)
	}
}
