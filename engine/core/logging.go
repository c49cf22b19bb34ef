package core

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "Lumen 🔦 ",
				})
				l.SetLevel(log.InfoLevel)
				// the wrappers below add one frame to the stack
				l.SetCallerOffset(1)
				singleton = &logger{l}
			})
	}
	return singleton
}

// Logger exposes the underlying structured logger for call sites that
// want key/value fields instead of a formatted message.
func Logger() *log.Logger {
	return getLogger().Logger
}

// SetLogLevel accepts debug, info, warn, error and fatal. Unknown levels
// leave the current level untouched and are reported.
func SetLogLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		LogWarn("unknown log level %q, keeping %s", level, getLogger().GetLevel())
		return
	}
	getLogger().SetLevel(lvl)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
