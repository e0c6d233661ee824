// Package logger configures the process-wide logrus logger.
package logger

import (
	log "github.com/sirupsen/logrus"
)

// Setup applies the configured log level and text format. Unknown
// levels fall back to info.
func Setup(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05 2006/01/02",
	})
}
