package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/oauth2"

	"github.com/magicjudges/announcer/bot"
	"github.com/magicjudges/announcer/panoptic"
	"github.com/magicjudges/announcer/panoptic/modules"
	"github.com/magicjudges/announcer/server"
	"github.com/magicjudges/announcer/utils"
	"github.com/magicjudges/announcer/utils/dotenv"
	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

const shutdownTimeout = 10 * time.Second

var opts flag.Options

// init() will always be called on before the execution of main function.
func init() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func cleanup() {
	if opts.IsProdEnv() {
		utils.CloseProfiler()
		utils.CloseTracer()
	}
	Logger.Log.Info("announcer shutdown")
}

func newStatusStore(ctx context.Context) panoptic.StatusStore {
	if opts.Redis.Host == "" {
		return panoptic.NewMemoryStatusStore()
	}
	store, err := utils.GetRedisStatusStore(ctx, opts.Redis)
	if err != nil {
		panic(err)
	}
	return store
}

// Metrics are disabled when no statsd address is configured.
func newDogStatsdClient() modules.Metrics {
	if opts.Server.StatsdAddr == "" {
		return nil
	}
	client, err := statsd.New(opts.Server.StatsdAddr)
	if err != nil {
		panic(err)
	}
	return client
}

func newOAuthConfig() *oauth2.Config {
	if opts.Slack.ClientID == "" {
		Logger.Log.Warn("no Slack client id, /bot/auth is disabled")
		return nil
	}
	return bot.NewSlackOAuthConfig(opts.Slack)
}

func main() {
	if err := flag.ParseFlags(&opts); err != nil {
		if err == flag.ErrHelp {
			return
		}
		panic(err)
	}
	Logger.InitLogger(opts.ServiceName, opts.Env)
	defer cleanup()

	if opts.IsProdEnv() {
		utils.StartTracer(opts.ServiceName, opts.Env)
		if err := utils.StartProfiler(opts.ServiceName, opts.Env); err != nil {
			Logger.Log.Errorf("fail to start profiler: %s", err)
		}
	}

	db, err := utils.GetDBConnection(opts.Database)
	if err != nil {
		panic(err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	store := newStatusStore(ctx)

	jobs, err := modules.NewStageJobs(modules.NewPipeline(db, opts), opts.Pipeline.Schedule)
	if err != nil {
		panic(err)
	}

	// Reports must reach the reporter in the order the stage jobs emit them.
	eventbus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            100,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)

	scheduler := modules.NewScheduler(
		modules.SchedulerConfig{Name: "scheduler"},
		jobs,
		modules.NewStageJobDoer(eventbus),
	)
	engine := panoptic.NewEngine([]panoptic.Module{
		// Reporter keeps the stage status and sends pass metrics to datadog.
		modules.NewReporter(modules.ReporterConfig{Name: "reporter"}, newDogStatsdClient(), store, eventbus),
		// Scheduler runs every stage on its cron schedule.
		scheduler,
	}, ctx, cancel, eventbus)

	srv := &server.Server{
		DB:            db,
		Stages:        scheduler,
		Status:        store,
		OAuth:         newOAuthConfig(),
		OperatorToken: opts.Server.OperatorToken,
		Now:           utils.UTCNow,
	}
	httpServer := &http.Server{
		Addr:    opts.Server.ListenAddr,
		Handler: srv.NewRouter(opts.ServiceName),
	}
	go func() {
		Logger.Log.Infof("operator server listening on %s", opts.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Logger.Log.Errorf("operator server stopped: %s", err)
			cancel()
		}
	}()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-signals:
			Logger.Log.Infof("received %s", sig)
		case <-ctx.Done():
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			Logger.Log.Errorf("fail to shut down operator server: %s", err)
		}
		engine.Shutdown()
	}()

	// blocking call.
	engine.Run()

	Logger.Log.Info("engine stopped execution.")
}
