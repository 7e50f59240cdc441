package utils

import (
	"github.com/pkg/errors"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"
)

// StartProfiler starts the Datadog continuous profiler. Binaries only call it
// in prod.
func StartProfiler(serviceName string, env string) error {
	err := profiler.Start(
		profiler.WithService(serviceName),
		profiler.WithEnv(ddEnv(env)),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	)
	return errors.Wrap(err, "cannot start profiler")
}

// Stop profiler, OK to be closed multiple times
func CloseProfiler() {
	// Datadog profiler
	profiler.Stop()
}
