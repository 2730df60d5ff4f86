package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/starledger/starbot/internal/bot"
	"github.com/starledger/starbot/internal/config"
	gateway "github.com/starledger/starbot/internal/gateways"
	"github.com/starledger/starbot/internal/queue"
	"github.com/starledger/starbot/internal/repository"
	"github.com/starledger/starbot/internal/services"
	"github.com/starledger/starbot/internal/session"
	"github.com/starledger/starbot/pkg/logger"
	"github.com/starledger/starbot/pkg/pg"
	"github.com/starledger/starbot/pkg/prom"
	"github.com/starledger/starbot/pkg/redis"
)

// lateNotifier breaks the ledger/bot construction cycle: the ledger needs a
// Notifier before the bot exists.
type lateNotifier struct {
	mu sync.RWMutex
	n  services.Notifier
}

func (l *lateNotifier) Set(n services.Notifier) {
	l.mu.Lock()
	l.n = n
	l.mu.Unlock()
}

func (l *lateNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	l.mu.RLock()
	n := l.n
	l.mu.RUnlock()
	if n == nil {
		return nil
	}
	return n.Notify(ctx, chatID, text)
}

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	if config.Get().AppDebug && config.Get().AppDebugMetricsAddr != "" {
		hostname, _ := os.Hostname()
		if err := prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace); err != nil {
			logger.Error("failed to init metrics", "error", err)
		} else {
			go prom.ListenAndServe(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}
	}

	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	promoRepo := repository.NewPromoCodeRepository(db)

	payout := gateway.NewPayoutClient(gateway.PayoutClientConfig{
		BaseURL: config.Get().PayoutDeskURL,
	})

	notifier := &lateNotifier{}

	ledger := services.NewLedgerService(
		accountRepo,
		transactionRepo,
		promoRepo,
		notifier,
		payout,
		services.RewardConfig{
			ReferralReward:    config.Get().ReferralReward,
			DailyBonus:        config.Get().DailyBonus,
			BonusInterval:     config.Get().BonusInterval,
			WithdrawalOptions: config.Get().WithdrawalOptionList(),
		},
		config.Get().AdminIDList(),
	)

	broadcast, err := services.NewBroadcastService(redisAdap, accountRepo, notifier, services.BroadcastConfig{
		Queue: queue.Config{
			Name:              config.Get().BroadcastQueueName,
			ConsumerGroup:     config.Get().BroadcastConsumerGroup,
			ConsumerName:      config.Get().BroadcastConsumerName,
			MaxRetries:        config.Get().BroadcastMaxRetries,
			VisibilityTimeout: config.Get().BroadcastVisibilityTimeout,
			PollInterval:      config.Get().BroadcastPollInterval,
			BatchSize:         config.Get().BroadcastBatchSize,
		},
		Workers: config.Get().BroadcastWorkers,
	})
	if err != nil {
		logger.Error("failed creating broadcast service", "error", err)
		return
	}

	sessions := session.NewStore(redisAdap, config.Get().SessionTTL)

	b, err := bot.New(config.Get().BotToken, ledger, broadcast, sessions)
	if err != nil {
		logger.Error("failed creating bot", "error", err)
		return
	}
	notifier.Set(b)

	if err := broadcast.Start(); err != nil {
		logger.Error("failed starting broadcast service", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := b.Start(ctx); err != nil {
			logger.Error("bot stopped", "error", err)
			cancel()
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
	case <-ctx.Done():
	}

	logger.Info("shutting down..")
	b.Stop()
	if err := broadcast.Stop(30 * time.Second); err != nil {
		logger.Error("broadcast shutdown failed", "error", err)
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
