package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/starledger/starbot/pkg/logger"
)

const ConfigTagName = "env"

var config *Config

// Config holds every env-sourced value used by the bot. Only this struct
// must be used to read configuration, no direct access to env, ini or any
// other config source should be made.
type Config struct {
	AppEnv              string `env:"APP_ENV" default:"dev"`
	AppName             string `env:"APP_NAME" default:"starbot"`
	AppDebug            bool   `env:"APP_DEBUG" default:"1"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	BotToken string `env:"BOT_TOKEN"`
	AdminIDs string `env:"ADMIN_IDS"`

	ReferralReward    float64       `env:"REFERRAL_REWARD" default:"8.5"`
	DailyBonus        float64       `env:"DAILY_BONUS" default:"0.5"`
	BonusInterval     time.Duration `env:"BONUS_INTERVAL"`
	WithdrawalOptions string        `env:"WITHDRAWAL_OPTIONS"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	SessionTTL time.Duration `env:"SESSION_TTL"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	BroadcastQueueName         string        `env:"BROADCAST_QUEUE_NAME"`
	BroadcastConsumerGroup     string        `env:"BROADCAST_CONSUMER_GROUP"`
	BroadcastConsumerName      string        `env:"BROADCAST_CONSUMER_NAME"`
	BroadcastMaxRetries        int           `env:"BROADCAST_MAX_RETRIES"`
	BroadcastVisibilityTimeout time.Duration `env:"BROADCAST_VISIBILITY_TIMEOUT"`
	BroadcastPollInterval      time.Duration `env:"BROADCAST_POLL_INTERVAL"`
	BroadcastBatchSize         int64         `env:"BROADCAST_BATCH_SIZE"`
	BroadcastWorkers           int           `env:"BROADCAST_WORKERS"`

	PayoutDeskURL string `env:"PAYOUT_DESK_URL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)

	if err != nil {
		return errors.New("failed to map env variables to Configuration object " + " error: " + err.Error())
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// AdminIDList parses ADMIN_IDS, a comma-separated list of Telegram ids.
func (c *Config) AdminIDList() []int64 {
	var ids []int64
	for _, part := range strings.Split(c.AdminIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			logger.Warn("skipping malformed admin id", "value", part)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// WithdrawalOptionList parses WITHDRAWAL_OPTIONS, falling back to the
// standard denominations when unset.
func (c *Config) WithdrawalOptionList() []float64 {
	if strings.TrimSpace(c.WithdrawalOptions) == "" {
		return []float64{25, 50, 100, 300}
	}
	var opts []float64
	for _, part := range strings.Split(c.WithdrawalOptions, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			logger.Warn("skipping malformed withdrawal option", "value", part)
			continue
		}
		opts = append(opts, v)
	}
	return opts
}
