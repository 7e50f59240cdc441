package utils

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

func ddEnv(env string) string {
	if env == flag.ProdEnv {
		return "production"
	}
	return "development"
}

// StartTracer starts the Datadog tracer, which the gin middleware reports to.
func StartTracer(serviceName string, env string) {
	tracer.Start(
		tracer.WithService(serviceName),
		tracer.WithEnv(ddEnv(env)),
	)

	Logger.Log.WithFields(
		logrus.Fields{"service": serviceName, "env": env},
	).Info("tracer initialized")
}

// Stop tracer, OK to be closed multiple times
func CloseTracer() {
	// Datadog tracer
	tracer.Stop()
}
