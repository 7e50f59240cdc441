package panoptic

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	Logger "github.com/magicjudges/announcer/utils/log"
)

// Engine manages shared resources and execution lifecycle of each module. It
// owns the stage report bus: the scheduler's stage jobs publish a started and
// a finished report for every pass on TOPIC_STAGE_REPORT, and the reporter
// consumes them to keep the stage status store and the metrics up to date.
// Shutdown closes the bus once every module has stopped.
type Engine struct {
	// A list of modules that will be run in this Engine. Module's lifetime is
	// bound to Engine's lifetime. Each Module will be ran in a separate routine.
	Modules []Module

	// Root this engine is running on
	ctx context.Context

	// Cancel function for root context, used for graceful shutdown
	cancel context.CancelFunc

	// The EventBus this engine managed, stage jobs publish their reports on
	// it.
	EventBus *gochannel.GoChannel
}

// Create a new Engine given the provided modules and event bus.
func NewEngine(ms []Module, ctx context.Context, cancel context.CancelFunc, e *gochannel.GoChannel) *Engine {
	return &Engine{
		Modules:  ms,
		ctx:      ctx,
		cancel:   cancel,
		EventBus: e,
	}
}

// Execute all Engine modules and wait untils all modules to finish execution.
func (e *Engine) Run() {
	var wg sync.WaitGroup

	for _, m := range e.Modules {
		wg.Add(1)
		go func(module Module) {
			defer wg.Done()
			Logger.Log.Infof("start engine module %s", module.Name())
			RunModuleWithGracefulRestart(e.ctx, module)
			Logger.Log.Infof("Module %s finished execution.", module.Name())
		}(m)
	}

	// Block until all goroutine finished execution.
	wg.Wait()
}

func (e *Engine) Shutdown() {
	Logger.Log.Infoln("Starting graceful shutdown process. Goodbye!")
	e.cancel()

	var wg sync.WaitGroup
	for _, m := range e.Modules {
		wg.Add(1)
		go func(module Module) {
			defer wg.Done()
			Logger.Log.Infof("shutdown engine module %s", module.Name())
			module.Shutdown()
			Logger.Log.Infof("Module %s shut down.", module.Name())
		}(m)
	}

	// Block until all goroutine finished execution.
	wg.Wait()

	if err := e.EventBus.Close(); err != nil {
		Logger.Log.Errorf("fail to close event bus: %s", err)
	}
}
