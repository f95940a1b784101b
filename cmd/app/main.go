// File: cmd/app/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"bizbilling/internal/config"
	"bizbilling/internal/domain/ports/adapter"
	"bizbilling/internal/infra/adapters/notify"
	payAdapters "bizbilling/internal/infra/adapters/payment"
	"bizbilling/internal/infra/api"
	"bizbilling/internal/infra/api/apiv1"
	pg "bizbilling/internal/infra/db/postgres"
	"bizbilling/internal/infra/i18n"
	"bizbilling/internal/infra/logging"
	"bizbilling/internal/infra/metrics"
	red "bizbilling/internal/infra/redis"
	"bizbilling/internal/infra/scheduler"
	"bizbilling/internal/infra/worker"
	"bizbilling/internal/usecase"
)

// Set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		// logging is not configured yet
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		l.Fatal().Err(err).Msg("config")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting billing service")

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	if cfg.Database.Migrate {
		if err := pg.Migrate(cfg.Database.URL, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	defRepo := pg.NewServiceDefinitionCacheDecorator(pg.NewServiceDefinitionRepo(pool), redisClient, cfg.Redis.TTL, logger)
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewUserRepo(pool), redisClient)
	serviceRepo := pg.NewClientServiceRepo(pool)
	maintenanceRepo := pg.NewMaintenanceRepo(pool)
	orderRepo := pg.NewOrderRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	notificationRepo := pg.NewNotificationRepo(pool)
	noticeLogRepo := pg.NewNotificationLogRepo(pool)

	// ---- Gateway ----
	var gateway adapter.PaymentGateway
	switch cfg.Payment.Gateway {
	case "noop":
		logger.Warn().Msg("payment gateway is noop; payments will never reach a processor")
		gateway = payAdapters.NewNoopPaymentGateway()
	default:
		pn, err := payAdapters.NewPaynowGateway(cfg.Payment.Paynow, cfg.Payment.GatewayTimeout, cfg.Payment.PollRate, cfg.Payment.PollBurst, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("paynow gateway")
		}
		gateway = pn
	}

	// ---- Notifications ----
	text, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	mailPool := worker.NewPool("mail", cfg.Email.Workers, logger)
	mailPool.Start(ctx)
	var mailer adapter.EmailSender = notify.NewLogMailer(logger)
	if cfg.Email.Host != "" {
		smtp, err := notify.NewSMTPMailer(cfg.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("smtp")
		}
		mailer = smtp
	} else {
		logger.Warn().Msg("email.host not set; emails are logged only")
	}

	var alerter adapter.OperatorAlerter = notify.NewLogAlerter(logger)
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramAlerter(cfg.Telegram.Token, cfg.Telegram.AlertChatID, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram alerter")
		}
		alerter = tg
	}

	delivery := usecase.Delivery{
		Notifier: notify.NewInAppNotifier(notificationRepo),
		Mailer:   notify.NewAsyncMailer(mailer, mailPool, 30*time.Second, logger),
		Alerter:  alerter,
		Users:    userRepo,
		Text:     text,
	}

	// ---- Use cases ----
	fulfillmentUC := usecase.NewFulfillmentUseCase(orderRepo, serviceRepo, defRepo, delivery, logger)
	paymentUC := usecase.NewPaymentUseCase(paymentRepo, orderRepo, serviceRepo, defRepo, fulfillmentUC, gateway, tm, usecase.PaymentConfig{
		Currency:       cfg.Payment.Currency,
		ReturnURL:      cfg.Payment.Paynow.ReturnURL,
		GatewayTimeout: cfg.Payment.GatewayTimeout,
		StaleAfter:     cfg.Payment.StaleAfter,
		SweepBatch:     cfg.Payment.SweepBatch,
		PollRate:       cfg.Payment.PollRate,
		PollBurst:      cfg.Payment.PollBurst,
	}, delivery, logger)
	serviceUC := usecase.NewClientServiceUseCase(serviceRepo, defRepo, tm, logger)
	maintenanceUC := usecase.NewMaintenanceUseCase(maintenanceRepo, tm, cfg.Payment.Currency, logger)
	notificationUC := usecase.NewNotificationUseCase(notificationRepo, logger)
	billingUC := usecase.NewBillingUseCase(serviceRepo, maintenanceRepo, defRepo, noticeLogRepo, tm, usecase.BillingConfig{
		Location:           cfg.Location(),
		ReminderWindowDays: cfg.Billing.ReminderWindowDays,
		ReminderMode:       cfg.Billing.ReminderMode,
	}, delivery, logger)

	// ---- HTTP ----
	v1 := apiv1.NewServer(apiv1.Deps{
		Payments:      paymentUC,
		Services:      serviceUC,
		Maintenance:   maintenanceUC,
		Notifications: notificationUC,
		Auth:          apiv1.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Limiter:       red.NewRateLimiter(redisClient),
		PollLimit:     cfg.HTTP.PollLimit,
		PollWindow:    cfg.HTTP.PollWindow,
	}, logger)
	server := api.NewServer(api.Options{
		Port:           cfg.HTTP.Port,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Metrics:        cfg.Metrics.Enabled,
		Checks: map[string]api.HealthCheck{
			"postgres": pingPostgres(pool),
			"redis":    redisClient.Ping,
		},
	}, v1, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Jobs ----
	loc := cfg.Location()
	chargeAt, err := scheduler.ParseDaily(cfg.Billing.ChargeAt, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("billing.charge_at")
	}
	reminderAt, err := scheduler.ParseDaily(cfg.Billing.ReminderAt, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("billing.reminder_at")
	}
	jobs := scheduler.New(red.NewLocker(redisClient), red.JobLockKey, logger)
	jobs.Add(scheduler.ChargeJob(billingUC, chargeAt))
	jobs.Add(scheduler.ReminderJob(billingUC, reminderAt))
	jobs.Add(scheduler.PaymentSweepJob(paymentUC, cfg.Payment.SweepInterval))
	jobs.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigc:
		logger.Info().Str("signal", s.String()).Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	jobs.Stop()
	mailPool.Stop()
	cancel()
	logger.Info().Msg("bye")
}

func pingPostgres(pool *pgxpool.Pool) api.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}
