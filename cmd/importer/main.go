package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/app_config"
	"github.com/magicjudges/announcer/utils"
	"github.com/magicjudges/announcer/utils/dotenv"
	"github.com/magicjudges/announcer/utils/flag"
	Logger "github.com/magicjudges/announcer/utils/log"
)

type ImporterOptions struct {
	Seed string `long:"seed" required:"true" description:"Path to the seed yaml file"`
}

func init() {
	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
}

func main() {
	var opts flag.Options
	var importerOpts ImporterOptions
	if err := flag.ParseFlags(&opts, &importerOpts); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}
	Logger.InitLogger(opts.ServiceName, opts.Env)

	seed, err := app_config.ParseSeedFile(importerOpts.Seed)
	if err != nil {
		Logger.Log.Fatalf("cannot read seed: %s", err)
	}

	db, err := utils.GetDBConnection(opts.Database)
	if err != nil {
		Logger.Log.Fatalf("cannot connect to database: %s", err)
	}
	if err := utils.DatabaseSetupAndMigration(db); err != nil {
		Logger.Log.Fatalf("cannot migrate database: %s", err)
	}

	res, err := app_config.Import(db, seed)
	if err != nil {
		Logger.Log.Fatalf("import failed, nothing was written: %s", err)
	}
	Logger.Log.WithFields(logrus.Fields{
		"users_created":       res.UsersCreated,
		"users_updated":       res.UsersUpdated,
		"sources_created":     res.SourcesCreated,
		"sources_updated":     res.SourcesUpdated,
		"ad_messages_created": res.AdMessagesCreated,
		"ad_messages_updated": res.AdMessagesUpdated,
	}).Info("seed imported")
}
