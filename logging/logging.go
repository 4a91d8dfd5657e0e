// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})
}

// Setup sets the level of the standard logger and returns it. An empty
// level keeps logrus' default (info).
func Setup(level string) (*logrus.Logger, error) {
	logger := logrus.StandardLogger()
	if level == "" {
		return logger, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("error parsing log level '%s': %w", level, err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}
