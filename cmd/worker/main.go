package main

import (
	"context"
	"fmt"
	"net/smtp"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/organoz/village-market/internal/common"
	"github.com/organoz/village-market/internal/config"
	"github.com/organoz/village-market/internal/lock"
	"github.com/organoz/village-market/internal/notify"
	"github.com/organoz/village-market/internal/obs"
	"github.com/organoz/village-market/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	worker := notify.NewEmailWorker(redisClient, cfg.QueuePrefix, buildMailer(cfg, logger), logger)

	go reportQueueGauges(ctx, redisClient, cfg.QueuePrefix, logger)

	logger.Info().Str("queue_prefix", cfg.QueuePrefix).Msg("email worker started")
	if err := worker.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
	logger.Info().Msg("worker shut down")
}

// buildMailer returns the SMTP sender, or a logging sink when no SMTP server
// is configured so local runs do not need a mail relay.
func buildMailer(cfg *config.Config, logger zerolog.Logger) common.EmailSender {
	if strings.TrimSpace(cfg.SMTPAddr) == "" {
		logger.Warn().Msg("SMTP_ADDR not set, outbound email is logged and dropped")
		return logSender{logger: logger}
	}
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		host := cfg.SMTPAddr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, host)
	}
	return notify.SMTPSender{Addr: cfg.SMTPAddr, From: cfg.EmailFrom, Auth: auth}
}

type logSender struct {
	logger zerolog.Logger
}

func (s logSender) Send(to, subject, _ string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Msg("email dropped (no smtp configured)")
	return nil
}

// reportQueueGauges refreshes the queue depth and DLQ size gauges once per
// interval. A redis lock keeps the refresh to a single worker replica.
func reportQueueGauges(ctx context.Context, client *redis.Client, prefix string, logger zerolog.Logger) {
	locker := lock.Locker{R: client}
	queueKey := fmt.Sprintf("%s:queue:%s", prefix, notify.EmailTaskKind)
	dlqKey := fmt.Sprintf("%s:%s:dlq", prefix, notify.EmailTaskKind)
	if prefix == "" {
		queueKey = "queue:" + notify.EmailTaskKind
		dlqKey = "queue:" + notify.EmailTaskKind + ":dlq"
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := locker.WithLock(ctx, prefix+":lock:queue-gauges", 10*time.Second, func(ctx context.Context) error {
			depth, err := client.ZCard(ctx, queueKey).Result()
			if err != nil {
				return err
			}
			queue.QueueDepth.WithLabelValues(notify.EmailTaskKind).Set(float64(depth))

			dlq, err := client.LLen(ctx, dlqKey).Result()
			if err != nil {
				return err
			}
			queue.QueueDLQSize.WithLabelValues(notify.EmailTaskKind).Set(float64(dlq))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("queue gauge refresh failed")
		}
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Warn().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Warn().Err(err).Msg("instrument redis metrics")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	return client
}
