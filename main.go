package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Eursukkul/residence-booking/config"
	"github.com/Eursukkul/residence-booking/internal/auth"
	"github.com/Eursukkul/residence-booking/internal/consumer"
	"github.com/Eursukkul/residence-booking/internal/handler"
	"github.com/Eursukkul/residence-booking/internal/middleware"
	"github.com/Eursukkul/residence-booking/internal/notify"
	"github.com/Eursukkul/residence-booking/internal/ratelimit"
	"github.com/Eursukkul/residence-booking/internal/repository"
	"github.com/Eursukkul/residence-booking/internal/service"
	"github.com/Eursukkul/residence-booking/internal/worker"
	"github.com/Eursukkul/residence-booking/pkg/database"
	"github.com/Eursukkul/residence-booking/pkg/logger"
	"github.com/Eursukkul/residence-booking/pkg/payment"
	"github.com/Eursukkul/residence-booking/pkg/rabbitmq"
	"github.com/Eursukkul/residence-booking/pkg/redisclient"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("residence booking service stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	db, err := database.NewPostgresDB(cfg.DSN())
	if err != nil {
		return err
	}

	// RabbitMQ: listing replica in, booking notifications out
	mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, log)
	if err != nil {
		return err
	}
	defer mqConsumer.Close()

	msgs, err := mqConsumer.Consume()
	if err != nil {
		return err
	}

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, log)
	if err != nil {
		return err
	}
	defer publisher.Close()
	notifier := notify.NewNotifier(publisher, log)

	// Repositories
	txr := repository.NewTransactor(db)
	listingRepo := repository.NewListingRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	codeRepo := repository.NewHandoverCodeRepository(db)

	gateway, payouts := paymentGateway(cfg, log)

	var (
		limiter       service.AttemptLimiter
		memoryLimiter *ratelimit.MemoryLimiter
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, "redeem", cfg.Redeem.Attempts, cfg.Redeem.Window)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, key-code attempt limits are per instance")
		memoryLimiter = ratelimit.NewMemoryLimiter(cfg.Redeem.Attempts, cfg.Redeem.Window)
		limiter = memoryLimiter
	}

	// Services
	commission, err := service.NewCommissionPolicy(cfg.Commission.Policy, cfg.Commission.Fixed)
	if err != nil {
		return err
	}
	opts := service.Options{
		PaymentTTL:     cfg.Workflow.PaymentTTL,
		KeyCodeTTL:     cfg.Workflow.KeyCodeTTL,
		GatewayTimeout: cfg.Workflow.GatewayTimeout,
		CallbackURL:    cfg.Payment.CallbackURL,
		Currency:       cfg.Payment.Currency,
		Commission:     commission,
		Logger:         log,
	}
	bookingSvc := service.NewBookingService(txr, bookingRepo, listingRepo, notifier, opts)
	decisionSvc := service.NewDecisionService(txr, bookingRepo, notifier, opts)
	paymentSvc := service.NewPaymentService(txr, bookingRepo, paymentRepo, codeRepo, gateway, notifier, opts)
	keySvc := service.NewKeyExchangeService(txr, bookingRepo, codeRepo, limiter, notifier, opts)
	settlementSvc := service.NewSettlementService(txr, bookingRepo, payouts, notifier, opts)

	sweeper := worker.NewSweeper(bookingSvc, keySvc, settlementSvc, worker.SweeperConfig{
		Interval:    cfg.Workflow.SweepInterval,
		AutoSettle:  cfg.Workflow.AutoSettle,
		SettleAfter: cfg.Workflow.SettleAfter,
	}, log)

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler(log)
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echoMw.Recover())
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handler.Handlers{
		Bookings:   handler.NewBookingHandler(bookingSvc, decisionSvc, cfg.Workflow.PaymentTTL),
		Payments:   handler.NewPaymentHandler(paymentSvc, cfg.Payment.WebhookSecret, log),
		Keys:       handler.NewKeyCodeHandler(keySvc),
		Settlement: handler.NewSettlementHandler(settlementSvc),
	}.Register(e, middleware.AuthRequired(auth.NewTokenParser(cfg.JWT.Secret, cfg.JWT.Issuer)))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.ServerPort).Msg("residence booking service starting")
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.NewListingConsumer(listingRepo, log).Run(ctx, msgs)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	if memoryLimiter != nil {
		g.Go(func() error {
			return memoryLimiter.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func paymentGateway(cfg *config.Config, log zerolog.Logger) (payment.Provider, payment.Payouts) {
	if cfg.Payment.Provider == "stub" {
		log.Warn().Msg("using stub payment provider, every charge succeeds")
		stub := payment.NewStubProvider()
		return stub, stub
	}
	ps := payment.NewPaystackProvider(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.Currency, cfg.Workflow.GatewayTimeout, log)
	return ps, ps
}
