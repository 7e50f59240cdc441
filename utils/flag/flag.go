/*
flag Package set up cli flags and environment configuration shared across
binaries.

Usage:

	Every option can be given on the command line or through the environment
	(which dotenv files populate). Binary specific flags are declared in their
	own main package and embedded next to Options.
*/

package flag

import (
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	ProdEnv = "prod"
	DevEnv  = "dev"
	TestEnv = "test"

	Announcer = "announcer"
)

type DatabaseOptions struct {
	Driver     string `long:"db-driver" env:"DB_DRIVER" default:"postgres" choice:"postgres" choice:"sqlite" description:"Database driver"`
	Host       string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	Port       string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	User       string `long:"db-user" env:"DB_USER" default:"announcer" description:"Database user"`
	Password   string `long:"db-pass" env:"DB_PASS" description:"Database password"`
	Name       string `long:"db-name" env:"DB_NAME" default:"announcer" description:"Database name"`
	SqlitePath string `long:"sqlite-path" env:"SQLITE_PATH" default:"announcer.db" description:"Database file when the driver is sqlite"`
}

type RedisOptions struct {
	Host   string `long:"redis-host" env:"REDIS_HOST" description:"Redis host, stage status stays in memory when empty"`
	Port   string `long:"redis-port" env:"REDIS_PORT" default:"6379" description:"Redis port"`
	Passwd string `long:"redis-passwd" env:"REDIS_PASSWD" description:"Redis password"`
}

type JudgeAppsOptions struct {
	BaseURL  string `long:"judgeapps-base-url" env:"JUDGEAPPS_BASE_URL" default:"https://apps.magicjudges.org" description:"JudgeApps root URL"`
	Username string `long:"judgeapps-username" env:"JUDGEAPPS_USERNAME" description:"JudgeApps account used to read forum feeds"`
	Password string `long:"judgeapps-password" env:"JUDGEAPPS_PASSWORD" description:"JudgeApps account password"`
}

type SlackOptions struct {
	ClientID     string `long:"bot-client-id" env:"BOT_CLIENT_ID" description:"Slack app client id"`
	ClientSecret string `long:"bot-client-secret" env:"BOT_CLIENT_SECRET" description:"Slack app client secret"`
	RedirectURL  string `long:"bot-redirect-url" env:"BOT_REDIRECT_URL" description:"Slack OAuth redirect url"`
}

type PipelineOptions struct {
	Schedule            string        `long:"stage-schedule" env:"STAGE_SCHEDULE" default:"@every 1m" description:"Cron spec used by all three stages"`
	HTTPTimeout         time.Duration `long:"http-timeout" env:"HTTP_TIMEOUT" default:"30s" description:"Timeout of every outbound HTTP call"`
	UserAgent           string        `long:"user-agent" env:"USER_AGENT" default:"JudgeAnnouncer/1.0" description:"User agent for feed requests"`
	FetchConcurrency    int           `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Sources polled in parallel"`
	DeliveryConcurrency int           `long:"delivery-concurrency" env:"DELIVERY_CONCURRENCY" default:"4" description:"Destinations served in parallel"`
	DeliveryRate        float64       `long:"delivery-rate" env:"DELIVERY_RATE" default:"1" description:"Messages per second per destination"`
	FooterTTL           time.Duration `long:"footer-ttl" env:"FOOTER_TTL" default:"5m" description:"Refresh period of the footer message pool"`
}

type ServerOptions struct {
	ListenAddr    string `long:"listen" env:"LISTEN_ADDR" default:":8080" description:"Operator server address"`
	OperatorToken string `long:"operator-token" env:"OPERATOR_TOKEN" description:"Bearer token required by operator endpoints, open when empty"`
	StatsdAddr    string `long:"statsd-addr" env:"STATSD_ADDR" default:"127.0.0.1:8125" description:"DogStatsD address, metrics are disabled when empty"`
}

// Options is the full configuration of every binary.
type Options struct {
	Env         string `long:"env" env:"ANNOUNCER_ENV" default:"dev" description:"dev, test or prod"`
	ServiceName string `long:"service" env:"SERVICE_NAME" default:"announcer" description:"Service name attached to logs, traces and metrics"`

	Database  DatabaseOptions  `group:"database"`
	Redis     RedisOptions     `group:"redis"`
	JudgeApps JudgeAppsOptions `group:"judgeapps"`
	Slack     SlackOptions     `group:"slack"`
	Pipeline  PipelineOptions  `group:"pipeline"`
	Server    ServerOptions    `group:"server"`
}

func (o *Options) IsProdEnv() bool {
	return o.Env == ProdEnv
}

// ParseFlags parses os.Args into opts and any extra option groups given. It
// returns ErrHelp when the user asked for usage.
func ParseFlags(opts *Options, extra ...interface{}) error {
	return ParseArgs(opts, os.Args[1:], extra...)
}

var ErrHelp = errors.New("help requested")

func ParseArgs(opts *Options, args []string, extra ...interface{}) error {
	parser := flags.NewParser(opts, flags.Default)
	for _, e := range extra {
		if _, err := parser.AddGroup("command", "", e); err != nil {
			return errors.Wrap(err, "cannot register flag group")
		}
	}
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return ErrHelp
		}
		return errors.Wrap(err, "failed to parse configuration")
	}
	return nil
}

// CurrentEnv reads the runtime environment before flags are parsed, which is
// needed to pick the dotenv files.
func CurrentEnv() string {
	env := os.Getenv("ANNOUNCER_ENV")
	if env == "" {
		return DevEnv
	}
	return env
}
