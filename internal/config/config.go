// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port     string
	LogLevel logrus.Level

	RedisAddr string // empty disables the action log
	RedisDB   int
	QueueName string

	DatabaseURL string // empty disables persistence

	RoomGrace         time.Duration
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	BroadcastTimeout  time.Duration
	DefaultCapacity   int
	MaxCapacity       int
	RoomQueueSize     int
	BroadcastBacklog  int

	ActionRate  float64 // inbound messages per second per connection
	ActionBurst int

	TokenExpire time.Duration // 0 => tokens never expire

	HistorianBatchSize int
	HistorianFlush     time.Duration
	HistorianIdle      time.Duration
}

// Load reads every setting from the environment, falling back to defaults.
func Load() Config {
	return Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnvLevel("LOG_LEVEL", logrus.InfoLevel),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		QueueName: getEnv("HISTORIAN_QUEUE_NAME", "tycoon_actions"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RoomGrace:         getEnvDuration("ROOM_EMPTY_GRACE", 10*time.Second),
		SweepInterval:     getEnvDuration("ROOM_SWEEP_INTERVAL", 5*time.Second),
		HeartbeatInterval: getEnvDuration("ROOM_HEARTBEAT_INTERVAL", 15*time.Second),
		BroadcastTimeout:  getEnvDuration("BROADCAST_TIMEOUT", 3*time.Second),
		DefaultCapacity:   getEnvInt("ROOM_DEFAULT_CAPACITY", 4),
		MaxCapacity:       getEnvInt("ROOM_MAX_CAPACITY", 8),
		RoomQueueSize:     getEnvInt("ROOM_QUEUE_SIZE", 64),
		BroadcastBacklog:  getEnvInt("ROOM_BROADCAST_BACKLOG", 256),

		ActionRate:  getEnvFloat("CLIENT_ACTION_RATE", 10),
		ActionBurst: getEnvInt("CLIENT_ACTION_BURST", 10),

		TokenExpire: getEnvDuration("TOKEN_EXPIRE_TIME", 0),

		HistorianBatchSize: getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		HistorianFlush:     time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		HistorianIdle:      time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
	}
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

func getEnvFloat(key string, defVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return defVal
	}
	return f
}

// getEnvDuration accepts Go durations ("10s"); "never" and "0" mean zero.
func getEnvDuration(key string, defVal time.Duration) time.Duration {
	v := os.Getenv(key)
	switch v {
	case "":
		return defVal
	case "never", "0":
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defVal
	}
	return d
}

func getEnvLevel(key string, defVal logrus.Level) logrus.Level {
	lvl, err := logrus.ParseLevel(os.Getenv(key))
	if err != nil {
		return defVal
	}
	return lvl
}
