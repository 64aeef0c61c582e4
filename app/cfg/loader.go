package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"gtfs_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"gtfs_password" description:"Database password (required)" required:"true"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"gtfs" description:"Database name"`

	// Kafka configuration
	KafkaBrokers    string `long:"kafka-brokers" env:"KAFKA_BROKERS" default:"localhost:9092" description:"Comma-separated Kafka bootstrap servers"`
	ConsumerGroup   string `long:"consumer-group" env:"CONSUMER_GROUP" default:"gtfs-rt-consumer" description:"Kafka consumer group id"`
	TripUpdateTopic string `long:"trip-update-topic" env:"TRIP_UPDATE_TOPIC" default:"gtfs-rt-tu" description:"Topic carrying trip update entities"`
	AlertTopic      string `long:"alert-topic" env:"ALERT_TOPIC" default:"gtfs-rt-sa" description:"Topic carrying service alert entities"`

	// Dedup cache configuration
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address for the dedup cache"`
	DedupTTLSec int    `long:"dedup-ttl" env:"DEDUP_TTL" default:"36000" description:"Dedup window in seconds"`

	// Producer configuration
	SourcesDir      string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing feed source definitions"`
	PollIntervalSec int    `long:"poll-interval" env:"POLL_INTERVAL" default:"60" description:"Producer poll interval in seconds"`
	FetchTimeoutSec int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10" description:"Feed fetch timeout in seconds"`
	StartupDelaySec int    `long:"startup-delay" env:"STARTUP_DELAY" default:"0" description:"Delay before the first cycle, to let Kafka and Redis come up"`
	UserAgent       string `long:"user-agent" env:"USER_AGENT" default:"gtfs-rt-pipeline/1.0" description:"User agent string for feed requests"`

	// Consumer configuration
	PollMax            int `long:"poll-max" env:"POLL_MAX" default:"1000" description:"Maximum messages polled per family per cycle"`
	PollTimeoutSec     int `long:"poll-timeout" env:"POLL_TIMEOUT" default:"1" description:"Bus poll timeout in seconds"`
	IdleSleepSec       int `long:"idle-sleep" env:"IDLE_SLEEP" default:"60" description:"Sleep after an empty cycle in seconds"`
	PacingSleepSec     int `long:"pacing-sleep" env:"PACING_SLEEP" default:"300" description:"Sleep after a successful write in seconds"`
	PollErrorSleepSec  int `long:"poll-error-sleep" env:"POLL_ERROR_SLEEP" default:"60" description:"Sleep after a poll error in seconds"`
	WriteErrorSleepSec int `long:"write-error-sleep" env:"WRITE_ERROR_SLEEP" default:"300" description:"Sleep after a failed write transaction in seconds"`

	// Static refresh configuration
	StaticURL string `long:"static-url" env:"STATIC_URL" description:"GTFS static dataset zip URL (staticsync)"`

	// Application metadata
	Port  string `long:"port" env:"PORT" default:"8080" description:"Ops HTTP server port"`
	Debug bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBHost:             raw.DBHost,
		DBPort:             raw.DBPort,
		DBUser:             raw.DBUser,
		DBPassword:         raw.DBPassword,
		DBName:             raw.DBName,
		KafkaBrokers:       raw.KafkaBrokers,
		ConsumerGroup:      raw.ConsumerGroup,
		TripUpdateTopic:    raw.TripUpdateTopic,
		AlertTopic:         raw.AlertTopic,
		RedisAddr:          raw.RedisAddr,
		DedupTTLSec:        raw.DedupTTLSec,
		SourcesDir:         raw.SourcesDir,
		PollIntervalSec:    raw.PollIntervalSec,
		FetchTimeoutSec:    raw.FetchTimeoutSec,
		StartupDelaySec:    raw.StartupDelaySec,
		UserAgent:          raw.UserAgent,
		PollMax:            raw.PollMax,
		PollTimeoutSec:     raw.PollTimeoutSec,
		IdleSleepSec:       raw.IdleSleepSec,
		PacingSleepSec:     raw.PacingSleepSec,
		PollErrorSleepSec:  raw.PollErrorSleepSec,
		WriteErrorSleepSec: raw.WriteErrorSleepSec,
		StaticURL:          raw.StaticURL,
		Port:               raw.Port,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
