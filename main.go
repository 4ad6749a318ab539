package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"subscriptionOpsAPI/handlers"
	"subscriptionOpsAPI/internal/automation"
	"subscriptionOpsAPI/internal/config"
	"subscriptionOpsAPI/internal/dates"
	"subscriptionOpsAPI/internal/firebase"
	"subscriptionOpsAPI/internal/identity"
	"subscriptionOpsAPI/internal/lock"
	"subscriptionOpsAPI/internal/messaging"
	"subscriptionOpsAPI/internal/metrics"
	"subscriptionOpsAPI/internal/repository"
	"subscriptionOpsAPI/middleware"
	"subscriptionOpsAPI/services"

	_ "time/tzdata"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized successfully")
		}
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	fb, err := firebase.NewClients(initCtx, cfg.FirebaseCredentialsJSON, cfg.FirebaseCredentialsFile, cfg.FirebaseProjectID)
	if err != nil {
		logger.Error("Failed to initialize Firebase", "error", err)
		os.Exit(1)
	}
	logger.Info("Firebase initialized successfully")

	loc, err := dates.LoadZone(cfg.AutomationTimeZone)
	if err != nil {
		logger.Error("Invalid AUTOMATION_TZ", "error", err)
		os.Exit(1)
	}

	subscriptionRepo := repository.NewSubscriptionRepository(fb.Firestore)
	paymentRepo := repository.NewPaymentRepository(fb.Firestore)
	clientRepo := repository.NewClientRepository(fb.Firestore)
	messageRepo := repository.NewMessageRepository(fb.Firestore)
	conversationRepo := repository.NewConversationRepository(fb.Firestore)
	automationRepo := repository.NewAutomationRepository(fb.Firestore)

	var gateway services.MessageGateway
	var signatures middleware.SignatureChecker
	if cfg.TwilioEnabled() {
		gateway = messaging.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
		logger.Info("Twilio gateway enabled", "from", cfg.TwilioFromNumber)
	} else {
		gateway = messaging.NewDryRunGateway(logger)
		logger.Warn("Twilio not configured, outbound messages are logged only")
	}
	if cfg.TwilioAuthToken != "" {
		signatures = messaging.NewSignatureValidator(cfg.TwilioAuthToken)
	}

	var tickLock services.TickLock = lock.Local{}
	var redisLock *lock.RedisLock
	if cfg.RedisURL != "" {
		redisLock, err = lock.NewRedisLock(cfg.RedisURL)
		if err != nil {
			logger.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		if err := redisLock.Ping(initCtx); err != nil {
			logger.Warn("Redis unreachable, scheduler lock will fail open", "error", err)
		}
		tickLock = redisLock
	}

	defaults := automation.DefaultConfig()
	defaults.CronExpression = cfg.AutomationCron
	defaults.TimeZone = cfg.AutomationTimeZone
	defaults.CatchUp = cfg.AutomationCatchUp

	resolver := services.NewClientResolver(clientRepo)
	subscriptionService := services.NewSubscriptionService(subscriptionRepo, resolver, logger)
	paymentService := services.NewPaymentService(paymentRepo, subscriptionRepo, loc, logger)
	communicationService := services.NewCommunicationService(resolver, clientRepo, subscriptionRepo, messageRepo, conversationRepo, gateway, logger)
	automationService := services.NewAutomationService(subscriptionRepo, communicationService, automationRepo, defaults, logger)
	authService := services.NewAuthService(fb.Auth, clientRepo, logger)
	clientService := services.NewClientService(clientRepo, resolver, conversationRepo, authService, logger)

	scheduler := services.NewAutomationScheduler(automationService, tickLock, cfg.AutomationJobDisabled, logger)
	if err := scheduler.Start(initCtx); err != nil {
		logger.Error("Scheduler did not start", "error", err)
	}

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	metrics.Register(prometheus.DefaultRegisterer)

	healthHandler := handlers.NewHealthHandler(scheduler)
	automationHandler := handlers.NewAutomationHandler(automationService, scheduler)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	clientHandler := handlers.NewClientHandler(clientService)
	communicationHandler := handlers.NewCommunicationHandler(communicationService)
	authHandler := handlers.NewAuthHandler(authService)

	r := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go rateLimiter.CleanupVisitors(cleanupCtx)

	// Scrapes skip the rate limiter.
	r.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler())).Methods("GET")

	standardRouter := r.PathPrefix("/").Subrouter()
	standardRouter.Use(middleware.RequestIDMiddleware)
	standardRouter.Use(rateLimiter.Middleware)
	standardRouter.Use(middleware.MonitorMiddleware)

	standardRouter.HandleFunc("/health", healthHandler.Health).Methods("GET")

	api := standardRouter.PathPrefix("/api/v1").Subrouter()

	// Twilio signs the body, so the webhook sits outside the token check.
	api.Handle("/communications/webhook",
		middleware.TwilioSignatureMiddleware(signatures, cfg.TwilioWebhookURL)(http.HandlerFunc(communicationHandler.Webhook)),
	).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.FirebaseAuthMiddleware(authService))

	admin := middleware.RequireRole(identity.RoleAdmin)
	adminOrClient := middleware.RequireRole(identity.RoleAdmin, identity.RoleClient)
	adminOrStaff := middleware.RequireRole(identity.RoleAdmin, identity.RoleStaff)
	guard := func(role func(http.Handler) http.Handler, h http.HandlerFunc) http.Handler {
		return role(h)
	}

	protected.Handle("/automation/config", guard(admin, automationHandler.GetConfig)).Methods("GET")
	protected.Handle("/automation/config", guard(admin, automationHandler.UpdateConfig)).Methods("PUT")
	protected.Handle("/automation/config", guard(admin, automationHandler.ResetConfig)).Methods("DELETE")
	protected.Handle("/automation/run-daily", guard(admin, automationHandler.RunDaily)).Methods("POST")

	protected.HandleFunc("/payments", paymentHandler.CreatePayment).Methods("POST")
	protected.Handle("/payments", guard(adminOrClient, paymentHandler.ListPayments)).Methods("GET")
	protected.Handle("/payments/stats", guard(admin, paymentHandler.GetStats)).Methods("GET")
	protected.Handle("/payments/pending/{method}", guard(admin, paymentHandler.GetPendingByMethod)).Methods("GET")
	protected.Handle("/payments/subscription/{subscriptionId}", guard(adminOrClient, paymentHandler.GetBySubscription)).Methods("GET")
	protected.Handle("/payments/{id}", guard(adminOrClient, paymentHandler.GetPayment)).Methods("GET")
	protected.Handle("/payments/{id}/verify", guard(admin, paymentHandler.VerifyPayment)).Methods("PATCH")
	protected.Handle("/payments/{id}/reject", guard(admin, paymentHandler.RejectPayment)).Methods("PATCH")
	protected.Handle("/payments/{id}/retry", guard(adminOrClient, paymentHandler.RetryPayment)).Methods("PATCH")

	protected.Handle("/subscriptions", guard(admin, subscriptionHandler.CreateSubscription)).Methods("POST")
	protected.Handle("/subscriptions", guard(adminOrClient, subscriptionHandler.ListSubscriptions)).Methods("GET")
	protected.Handle("/subscriptions/{id}", guard(adminOrClient, subscriptionHandler.GetSubscription)).Methods("GET")
	protected.Handle("/subscriptions/{id}", guard(admin, subscriptionHandler.UpdateSubscription)).Methods("PATCH")
	protected.Handle("/subscriptions/{id}", guard(admin, subscriptionHandler.DeleteSubscription)).Methods("DELETE")
	protected.Handle("/subscriptions/{id}/renew", guard(admin, subscriptionHandler.RenewSubscription)).Methods("POST")

	protected.Handle("/clients", guard(admin, clientHandler.CreateClient)).Methods("POST")
	protected.Handle("/clients", guard(admin, clientHandler.ListClients)).Methods("GET")
	protected.Handle("/clients/{id}", guard(admin, clientHandler.GetClient)).Methods("GET")
	protected.Handle("/clients/{id}", guard(admin, clientHandler.UpdateClient)).Methods("PATCH")
	protected.Handle("/clients/{id}", guard(admin, clientHandler.DeleteClient)).Methods("DELETE")

	protected.Handle("/communications/conversations", guard(adminOrStaff, communicationHandler.ListConversations)).Methods("GET")
	protected.Handle("/communications/conversations/{phone}/read", guard(adminOrStaff, communicationHandler.MarkConversationRead)).Methods("POST")
	protected.Handle("/communications/send-template", guard(admin, communicationHandler.SendTemplate)).Methods("POST")
	protected.Handle("/communications/send", guard(adminOrStaff, communicationHandler.SendText)).Methods("POST")
	protected.Handle("/communications/messages/{clientId}", guard(adminOrStaff, communicationHandler.GetMessages)).Methods("GET")

	protected.HandleFunc("/auth/me", authHandler.Me).Methods("GET")
	protected.Handle("/auth/users", guard(admin, authHandler.CreateUser)).Methods("POST")
	protected.Handle("/auth/users", guard(admin, authHandler.ListUsers)).Methods("GET")
	protected.Handle("/auth/users/{uid}/role", guard(admin, authHandler.SetRole)).Methods("PUT")
	protected.Handle("/auth/users/{uid}", guard(admin, authHandler.DeleteUser)).Methods("DELETE")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins(splitOrigins(cfg.CORSOrigins)),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Request-ID"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length", "X-Request-ID"}),
	)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})

	port := ":" + cfg.Port
	server := http.Server{
		Addr:         port,
		Handler:      sentryHandler.Handle(corsHandler(r)),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Error starting server", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Got signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Scheduler stop did not finish", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	cleanupCancel()

	if err := fb.Close(); err != nil {
		logger.Warn("Firestore close error", "error", err)
	}
	if redisLock != nil {
		_ = redisLock.Close()
	}
	sentry.Flush(2 * time.Second)

	logger.Info("Server shutdown complete")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
