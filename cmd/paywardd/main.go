package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"payward/gateway"
	"payward/gateway/config"
	"payward/gateway/middleware"
	"payward/integrations/webhooks"
	"payward/native/commission"
	"payward/native/loyalty"
	"payward/native/payments"
	"payward/native/subscription"
	"payward/notify"
	"payward/observability/logging"
	telemetry "payward/observability/otel"
	"payward/processor"
	"payward/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to service configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	slogger := logging.SetupWithOptions("paywardd", cfg.Environment, logging.Options{
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logger := log.New(os.Stdout, "paywardd ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Observability.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Observability.Metrics,
		Traces:      cfg.Observability.Tracing,
	})
	if err != nil {
		slogger.Error("failed to initialise telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer store.Close()

	ledger := loyalty.NewLedger(store)
	ledger.SetLogger(slogger)
	if path := strings.TrimSpace(cfg.Policies.LoyaltyPolicyPath); path != "" {
		policy, err := loyalty.LoadPolicy(path)
		if err != nil {
			logger.Fatalf("load loyalty policy: %v", err)
		}
		ledger.SetPolicy(policy)
	}
	if path := strings.TrimSpace(cfg.Policies.RewardCatalogPath); path != "" {
		catalog, err := loyalty.LoadCatalog(path)
		if err != nil {
			logger.Fatalf("load reward catalog: %v", err)
		}
		ledger.SetCatalog(catalog)
	}

	queue := notify.NewQueue(
		notify.WithCapacity(cfg.Notifications.QueueCapacity),
		notify.WithHistoryCapacity(cfg.Notifications.HistoryLimit),
		notify.WithTTL(cfg.Notifications.TTL),
	)
	var sender notify.Sender = notify.LogSender{Logger: slogger}
	if url := strings.TrimSpace(cfg.Notifications.WebhookURL); url != "" {
		sender, err = webhooks.NewSender(url, []byte(cfg.Notifications.WebhookSecret))
		if err != nil {
			logger.Fatalf("configure webhook sender: %v", err)
		}
	}
	dispatcher := notify.NewDispatcher(queue, sender, slogger)
	go dispatcher.Run(ctx)

	retry := processor.DefaultRetryPolicy()
	registry := processor.NewRegistry()
	if key := strings.TrimSpace(cfg.Processors.Stripe.SecretKey); key != "" {
		client := processor.NewStripeClient(cfg.Processors.Stripe.BaseURL, key, retry)
		registry.Register(client, cfg.Processors.Stripe.Methods...)
	}
	if id := strings.TrimSpace(cfg.Processors.PayPal.ClientID); id != "" {
		client := processor.NewPayPalClient(cfg.Processors.PayPal.BaseURL, id, cfg.Processors.PayPal.ClientSecret, retry)
		registry.Register(client, cfg.Processors.PayPal.Methods...)
	}

	payEngine := payments.NewEngine(store)
	payEngine.SetLoyalty(ledger)
	payEngine.SetProcessors(registry)
	payEngine.SetRetryPolicy(retry)
	payEngine.SetNotifier(dispatcher)
	payEngine.SetLogger(slogger)
	if path := strings.TrimSpace(cfg.Policies.CommissionPolicyPath); path != "" {
		policy, err := commission.LoadPolicy(path)
		if err != nil {
			logger.Fatalf("load commission policy: %v", err)
		}
		payEngine.SetCommissionPolicy(policy)
	}

	subEngine := subscription.NewEngine(store)
	subEngine.SetRecorder(gateway.ChargeRecorder{Engine: payEngine})
	subEngine.SetNotifier(dispatcher)
	subEngine.SetLogger(slogger)

	var auth *middleware.Authenticator
	if cfg.Auth.Enabled {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        true,
			HMACSecret:     cfg.Auth.HMACSecret,
			Issuer:         cfg.Auth.Issuer,
			Audience:       cfg.Auth.Audience,
			ScopeClaim:     cfg.Auth.ScopeClaim,
			OptionalPaths:  cfg.Auth.OptionalPaths,
			AllowAnonymous: cfg.Auth.AllowAnonymous,
			ClockSkew:      cfg.Auth.ClockSkew,
		}, logger)
	}

	var limiter *middleware.RateLimiter
	if len(cfg.RateLimits) > 0 {
		limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
		for _, rl := range cfg.RateLimits {
			limits[rl.ID] = middleware.RateLimit{
				RatePerSecond: rl.RatePerSecond,
				Burst:         rl.Burst,
			}
		}
		limiter = middleware.NewRateLimiter(limits, logger)
	}

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName:   cfg.Observability.ServiceName,
		MetricsPrefix: cfg.Observability.MetricsPrefix,
		LogRequests:   cfg.Observability.LogRequests,
		Enabled:       cfg.Observability.Metrics,
	}, logger)

	var cors *middleware.CORSConfig
	if cfg.CORS.Enabled {
		cors = &middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		}
	}

	server := gateway.NewServer(gateway.Deps{
		Ledger:        ledger,
		Payments:      payEngine,
		Subscriptions: subEngine,
		Store:         store,
		Logger:        slogger,
		Auth:          auth,
		RateLimiter:   limiter,
		Observability: obs,
		CORS:          cors,
	})

	var handler http.Handler = server.Router()
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(handler, cfg.Observability.ServiceName)
	}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go runBillingLoop(ctx, subEngine, cfg.Billing.TickInterval, slogger)

	go func() {
		slogger.Info("gateway listening", "address", cfg.ListenAddress, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Warn("graceful shutdown incomplete", "error", err)
	}
}

// runBillingLoop realizes deferred cancellations on a fixed cadence.
func runBillingLoop(ctx context.Context, engine *subscription.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			canceled, err := engine.RunBillingTick(ctx, now)
			if err != nil {
				logger.Warn("billing tick failed", "error", err)
				continue
			}
			if canceled > 0 {
				logger.Info("billing tick realized cancellations", "count", canceled)
			}
		}
	}
}
