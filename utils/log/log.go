package log

import (
	"os"
	"time"

	ddhook "github.com/bin3377/logrus-datadog-hook"
	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/utils/flag"
)

const (
	datadogUSHost    = "http-intake.logs.datadoghq.com"
	syncFrequencySec = 30
	syncRetry        = 3
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// This init function is only for testing cases, where the entry point is not
// main function. Unit test will fail with nil pointer dereference if we don't
// init here.
func init() {
	InitLogger(flag.Announcer, flag.CurrentEnv())
}

// InitLogger rebuilds the global logger. Logs always go to stderr, production
// additionally ships them to Datadog when DD_API_KEY is present.
func InitLogger(serviceName string, env string) {
	logger = logrus.New()

	// Also send log to stderr, without json formatter for better readability
	logger.SetOutput(os.Stderr)

	if env == flag.ProdEnv {
		if apiKey := os.Getenv("DD_API_KEY"); apiKey != "" {
			logger.Hooks.Add(ddhook.NewHook(
				datadogUSHost,
				apiKey,
				syncFrequencySec*time.Second,
				syncRetry,
				logrus.InfoLevel,
				&logrus.JSONFormatter{},
				ddhook.Options{},
			))
		}
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	Log = logger.WithFields(
		logrus.Fields{"service": serviceName, "is_development": env != flag.ProdEnv},
	)
}
