package cmd

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/notification"
	"github.com/vibast-solutions/ms-go-booking-payments/app/provider"
	"github.com/vibast-solutions/ms-go-booking-payments/app/referral"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
	"github.com/vibast-solutions/ms-go-booking-payments/app/service"
	"github.com/vibast-solutions/ms-go-booking-payments/config"
)

type dependencies struct {
	cfg            *config.Config
	paymentService *service.PaymentService
	queue          notification.Queue
	dispatcher     *notification.Dispatcher
}

func mustCreateDependencies() (*dependencies, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	closers := []func() error{db.Close}

	queue, closeQueue := newNotificationQueue(cfg, logrus.StandardLogger(), redisPingTimeout)
	if closeQueue != nil {
		closers = append(closers, closeQueue)
	}

	txManager := repository.NewTxManager(db)
	attemptRepo := repository.NewPaymentAttemptRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	ownerRepo := repository.NewOwnerRepository(db)
	referralRepo := repository.NewReferralRepository(db)

	stripeGateway := provider.NewStripeGateway(provider.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		APIURL:                    cfg.Stripe.APIURL,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
	})
	gateways := provider.NewRegistry(stripeGateway)

	dispatcher := notification.NewDispatcher(
		newMailTransport(cfg.Mail),
		queue,
		notification.MustNewRenderer(),
		notification.DispatcherConfig{
			MaxAttempts: cfg.Notifications.MaxAttempts,
			BaseDelay:   cfg.Notifications.RetryBaseDelay,
		},
	)

	referralApplier := referral.NewApplier(referralRepo, attemptRepo, txManager, cfg.Referral.PointsPerReferral)

	paymentService := service.NewPaymentService(
		attemptRepo,
		eventRepo,
		webhookRepo,
		ownerRepo,
		txManager,
		gateways,
		dispatcher,
		referralApplier,
		service.Settings{
			Payments:   cfg.Payments,
			AdminRole:  cfg.Auth.AdminRole,
			AdminEmail: cfg.Notifications.AdminEmail,
		},
	)

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logrus.WithError(err).Warn("Failed to close resource")
			}
		}
	}

	return &dependencies{
		cfg:            cfg,
		paymentService: paymentService,
		queue:          queue,
		dispatcher:     dispatcher,
	}, cleanup
}

const redisPingTimeout = 5 * time.Second

// newNotificationQueue returns a nil queue when Redis is not configured or not
// reachable, in which case notifications are delivered synchronously.
func newNotificationQueue(cfg *config.Config, logger logrus.FieldLogger, pingTimeout time.Duration) (notification.Queue, func() error) {
	if cfg.Redis.Addr == "" {
		logger.Info("REDIS_ADDR not set, notifications are delivered synchronously")
		return nil, nil
	}

	redisClient, err := newRedisClient(cfg.Redis, pingTimeout)
	if err != nil {
		logger.WithError(err).WithField("redis_addr", cfg.Redis.Addr).Warn("Failed to connect to redis, notifications are delivered synchronously")
		return nil, nil
	}
	return notification.NewRedisQueue(redisClient, cfg.Notifications.DedupeTTL), redisClient.Close
}

func newRedisClient(cfg config.RedisConfig, pingTimeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newMailTransport(cfg config.MailConfig) notification.Transport {
	if cfg.Transport == "api" {
		return notification.NewAPITransport(notification.APIConfig{
			URL:         cfg.APIURL,
			Token:       cfg.APIToken,
			FromAddress: cfg.FromAddress,
			FromName:    cfg.FromName,
			Timeout:     cfg.HTTPTimeout,
		})
	}
	return notification.NewSMTPTransport(notification.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
	})
}
