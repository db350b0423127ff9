package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

type Entry = logrus.Entry

type Fields = logrus.Fields

// Init настраивает JSON-логгер: DEBUG=true включает отладку, LOG_LEVEL задаёт уровень явно.
func Init() {
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	Log.SetOutput(os.Stdout)
	Log.SetLevel(levelFromEnv())
}

func levelFromEnv() logrus.Level {
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		if lvl, err := logrus.ParseLevel(v); err == nil {
			return lvl
		}
	}
	if os.Getenv("DEBUG") == "true" {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
