package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"essay-review-bot/applog"
	"essay-review-bot/bot"
	"essay-review-bot/checker"
	"essay-review-bot/config"
	"essay-review-bot/lock"
	"essay-review-bot/scheduler"
	"essay-review-bot/store"
	"essay-review-bot/workflow"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := applog.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := store.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		locks lock.Registry
		mem   *lock.Memory
	)
	switch cfg.Lock.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locks = lock.NewRedis(rdb, cfg.Lock.TTL)
	default:
		mem = lock.NewMemory(cfg.Lock.TTL)
		locks = mem
	}

	tb, err := bot.NewTelebot(cfg.Bot.Token, cfg.Bot.PollTimeout, logger)
	if err != nil {
		logger.Fatal("failed to create telegram bot", zap.Error(err))
	}

	jobs := scheduler.New(db, logger)
	svc, err := workflow.New(workflow.Deps{
		Ledger:    store.NewLedger(db),
		Payments:  store.NewPayments(db),
		Reviews:   store.NewReviews(db),
		Locks:     locks,
		Scheduler: jobs,
		Oracle:    checker.NewClient(cfg.Checker.BaseURL, cfg.Checker.APIKey, cfg.Checker.Model, cfg.Checker.Timeout),
		Messenger: bot.NewMessenger(tb),
	}, workflow.Options{
		Delay:          cfg.Review.Delay,
		VoiceDelay:     cfg.Review.VoiceDelay,
		MinWords:       cfg.Review.MinWords,
		MaxWords:       cfg.Review.MaxWords,
		EssayAdminID:   cfg.Admin.EssayAdminID,
		PaymentAdminID: cfg.Admin.PaymentAdminID,
		PaymentAmount:  cfg.Payment.Amount,
		NodeID:         cfg.Payment.NodeID,
	}, logger)
	if err != nil {
		logger.Fatal("failed to build workflow", zap.Error(err))
	}

	restored, err := jobs.Restore(ctx)
	if err != nil {
		logger.Fatal("failed to restore scheduled jobs", zap.Error(err))
	}
	logger.Info("scheduled jobs restored", zap.Int("count", restored))

	if mem != nil {
		n, err := svc.RestoreLocks(ctx)
		if err != nil {
			logger.Fatal("failed to restore locks", zap.Error(err))
		}
		logger.Info("locks restored", zap.Int("count", n))
	}

	b := bot.NewBot(tb, svc, bot.Settings{
		Channel:     cfg.Bot.Channel,
		ChannelURL:  cfg.Bot.ChannelURL,
		HelpContact: cfg.Bot.HelpContact,
		CardInfo:    cfg.Payment.CardInfo,
		Price:       cfg.Payment.Price,
	}, logger)

	// Scheduler
	c := cron.New()
	if mem != nil && cfg.Lock.TTL > 0 {
		if _, err := c.AddFunc("@every 1m", func() {
			if n := mem.Sweep(); n > 0 {
				logger.Info("expired locks swept", zap.Int("count", n))
			}
		}); err != nil {
			logger.Fatal("failed to schedule lock sweep", zap.Error(err))
		}
	}
	if cfg.Digest.Spec != "" {
		if _, err := c.AddFunc(cfg.Digest.Spec, func() {
			dctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if err := svc.SendDigest(dctx); err != nil {
				logger.Warn("failed to send digest", zap.Error(err))
			}
		}); err != nil {
			logger.Fatal("invalid digest schedule", zap.String("spec", cfg.Digest.Spec), zap.Error(err))
		}
	}
	c.Start()

	go b.Start()
	logger.Info("bot started", zap.String("username", tb.Me.Username))

	<-ctx.Done()
	logger.Info("shutting down")
	b.Stop()
	<-c.Stop().Done()
	jobs.Stop()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
