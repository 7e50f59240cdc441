package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/panoptic/modules"
	"github.com/magicjudges/announcer/utils"
	"github.com/magicjudges/announcer/utils/dotenv"
	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

// StageOptions selects the single pass this binary runs, typically from an
// external cron or by hand while debugging a source.
type StageOptions struct {
	Stage string `long:"stage" required:"true" description:"Stage to run once: fetch_announcements, route_announcements or deliver_messages"`
	Force bool   `long:"force" description:"Ignore the polling interval of sources"`
}

func init() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func main() {
	var opts flag.Options
	var stageOpts StageOptions
	if err := flag.ParseFlags(&opts, &stageOpts); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}
	Logger.InitLogger(opts.ServiceName, opts.Env)

	db, err := utils.GetDBConnection(opts.Database)
	if err != nil {
		panic(err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		panic(err)
	}

	stages := modules.NewPipeline(db, opts)
	var names []string
	for _, stage := range stages {
		names = append(names, stage.Name())
	}
	if !utils.ContainsString(names, stageOpts.Stage) {
		Logger.Log.Errorf("unknown stage %q, expected one of %v", stageOpts.Stage, names)
		os.Exit(2)
	}

	for _, stage := range stages {
		if stage.Name() != stageOpts.Stage {
			continue
		}
		result, err := stage.Run(context.Background(), stageOpts.Force)
		result.Stage = stage.Name()

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if encodeErr := encoder.Encode(result); encodeErr != nil {
			Logger.Log.Errorf("fail to print result: %s", encodeErr)
		}
		if err != nil {
			Logger.Log.WithFields(logrus.Fields{"stage": stage.Name()}).Errorf("stage failed: %s", err)
			os.Exit(1)
		}
		return
	}
}
