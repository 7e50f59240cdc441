package dotenv

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/magicjudges/announcer/utils/flag"
)

// LoadDotEnvs loads the .env files following the convention:
// https://github.com/bkeepers/dotenv#what-other-env-files-can-i-use
// It only needs to be called once in main, before flags are parsed, because
// go-flags reads option defaults from the environment.
func LoadDotEnvs() error {
	loadDotEnvs("", flag.CurrentEnv())
	return nil
}

func loadDotEnvs(rootPath string, env string) {
	// godotenv never overrides a variable that is already set, so files are
	// loaded from the highest to the lowest priority.
	// .env.[runtime_env].local usually contains usernames and passwords.
	godotenv.Load(filepath.Join(rootPath, ".env."+env+".local"))
	if env != flag.TestEnv {
		godotenv.Load(filepath.Join(rootPath, ".env.local"))
	}
	// .env.[runtime_env] usually contains db connection information
	godotenv.Load(filepath.Join(rootPath, ".env."+env))
	// .env contains shared variables
	godotenv.Load(filepath.Join(rootPath, ".env"))
}

// LoadDotEnvsInTests walks up from the working directory to the module root
// (the directory holding go.mod) and loads .env.test from there.
func LoadDotEnvsInTests() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			loadDotEnvs(dir, flag.TestEnv)
			return nil
		}
		if filepath.Dir(dir) == dir {
			return nil
		}
	}
}
