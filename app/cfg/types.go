package cfg

type Cfg struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Kafka configuration
	KafkaBrokers    string
	ConsumerGroup   string
	TripUpdateTopic string
	AlertTopic      string

	// Dedup cache configuration
	RedisAddr   string
	DedupTTLSec int

	// Producer configuration
	SourcesDir      string
	PollIntervalSec int
	FetchTimeoutSec int
	StartupDelaySec int
	UserAgent       string

	// Consumer configuration
	PollMax            int
	PollTimeoutSec     int
	IdleSleepSec       int
	PacingSleepSec     int
	PollErrorSleepSec  int
	WriteErrorSleepSec int

	// Static refresh configuration
	StaticURL string

	// Application metadata
	Port    string
	Debug   bool
	Version string
}
