package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	// HostnameField carries the guest's hostname on every record.
	HostnameField = "hostname"
	// ComponentField names the agent or tracker that emitted the record.
	ComponentField = "component"
)

// Log is the process wide logger. Init replaces it.
var Log = logrus.NewEntry(logrus.StandardLogger())

func init() {
	levelFromEnv(logrus.StandardLogger())
}

// Init configures the process wide logger for the named component.
func Init(component string, json, verbose bool) {
	Log = New(logrus.StandardLogger(), component, json, verbose)
}

// New configures logger and returns an entry carrying the static fields.
func New(logger *logrus.Logger, component string, json, verbose bool) *logrus.Entry {
	if json {
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg: "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.SetLevel(logrus.InfoLevel)
	levelFromEnv(logger)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger.WithFields(logrus.Fields{
		HostnameField:  hostname(),
		ComponentField: component,
	})
}

// NewFileLogger returns a JSON logger writing to out, used by trackers that
// keep their own record file next to stdout.
func NewFileLogger(component string, out io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(out)
	return New(logger, component, true, true)
}

func levelFromEnv(logger *logrus.Logger) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return
	}
	if parsed, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
