package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is usable before Init; Init swaps in the configured instance.
var Log = logrus.New()

func Init() {
	Log = logrus.New()
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// WithStudy tags an entry with the study identifier so per-study refresh
// failures can be grepped out of the stream.
func WithStudy(studyID string) *logrus.Entry {
	return Log.WithField("study_id", studyID)
}
