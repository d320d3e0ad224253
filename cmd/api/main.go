package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"digistore/internal/config"
	"digistore/internal/handler"
	"digistore/internal/imagehost"
	"digistore/internal/mailer"
	"digistore/internal/payment"
	"digistore/internal/service"
	"digistore/internal/sourcehost"
	"digistore/internal/store"
)

const (
	checkoutLimit = 5
	accessLimit   = 5

	processedSessionCapacity = 1000
	processedSessionRetain   = 500
	processedSessionTTL      = 24 * time.Hour
)

// sweeper is implemented by the in-memory limiters.
type sweeper interface {
	Sweep() int
}

type application struct {
	config       *config.Config
	logger       *logrus.Logger
	records      store.RecordStore
	redisClient  *redis.Client
	sweepers     map[string]sweeper
	server       *http.Server
	shutdownChan chan struct{}
	janitorDone  chan struct{}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	records, err := store.Open(cfg.DBDriver, cfg.DBDataSourceName, cfg.DataDir, logger)
	if err != nil {
		logger.Fatalf("Failed to open record store: %v", err)
	}
	defer func() {
		if err := records.Close(); err != nil {
			logger.Errorf("Error closing record store: %v", err)
		}
	}()

	app := &application{
		config:       cfg,
		logger:       logger,
		records:      records,
		sweepers:     make(map[string]sweeper),
		shutdownChan: make(chan struct{}),
		janitorDone:  make(chan struct{}),
	}

	var (
		checkoutLimiter service.RateLimiter
		accessLimiter   service.RateLimiter
		processed       service.SessionSet
	)
	if cfg.UseRedis() {
		app.redisClient, err = store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func() {
			if err := app.redisClient.Close(); err != nil {
				logger.Errorf("Error closing Redis client: %v", err)
			}
		}()
		checkoutLimiter = store.NewRedisRateLimiter(app.redisClient, "checkout", checkoutLimit, time.Minute)
		accessLimiter = store.NewRedisRateLimiter(app.redisClient, "repository-access", accessLimit, time.Hour)
		processed = store.NewRedisSessionSet(app.redisClient, processedSessionTTL)
		logger.Info("Using Redis for rate limits and processed sessions")
	} else {
		memCheckout := store.NewMemoryRateLimiter(checkoutLimit, time.Minute)
		memAccess := store.NewMemoryRateLimiter(accessLimit, time.Hour)
		app.sweepers["checkout"] = memCheckout
		app.sweepers["repository-access"] = memAccess
		checkoutLimiter, accessLimiter = memCheckout, memAccess
		processed = store.NewMemorySessionSet(processedSessionCapacity, processedSessionRetain)
	}

	products := store.NewProductRepository(records)
	purchases := store.NewPurchaseRepository(records)
	subscribers := store.NewSubscriberRepository(records)

	var sender mailer.Sender = mailer.NewLogSender(logger)
	if cfg.ResendAPIKey != "" {
		sender = mailer.NewResendSender(cfg.ResendAPIKey)
	} else {
		logger.Warn("RESEND_API_KEY not set, emails will be simulated")
	}

	uploader, uploadDir, err := newUploader(cfg)
	if err != nil {
		logger.Fatalf("Failed to configure image uploads: %v", err)
	}

	gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	gate := service.NewAdminGate(logger, cfg.AdminPassword, cfg.AllowedAdminIPs)
	if cfg.AdminPassword == "" {
		logger.Warn("ADMIN_PASSWORD not set, admin endpoints are disabled")
	}

	catalog := service.NewCatalogService(logger, products)
	if _, err := catalog.Seed(context.Background()); err != nil {
		logger.Fatalf("Failed to seed catalog: %v", err)
	}

	router := handler.NewRouter(logger, handler.RouterConfig{
		Catalog:        catalog,
		Checkout:       service.NewCheckoutService(logger, products, gateway, checkoutLimiter, cfg.BaseURL),
		Reconciler:     service.NewReconcilerService(logger, products, purchases, gateway, processed, sender, cfg.EmailFrom),
		Access:         service.NewAccessService(logger, products, purchases, sourcehost.NewGitHubClient(cfg.GitHubToken), accessLimiter),
		Newsletter:     service.NewNewsletterService(logger, subscribers, sender, cfg.EmailFrom, cfg.BaseURL),
		Uploads:        service.NewUploadService(logger, uploader),
		Gate:           gate,
		SecureCookie:   cfg.IsProduction(),
		UploadDir:      uploadDir,
		TrustedProxies: cfg.TrustedProxies,
	})

	go app.runJanitor()

	errorLog := logger.WriterLevel(logrus.ErrorLevel)
	defer errorLog.Close()

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     log.New(errorLog, "", 0),
	}

	app.serve()
}

// newUploader picks Cloudinary in production when configured and the local
// filesystem otherwise. The returned directory is non-empty only for local
// uploads.
func newUploader(cfg *config.Config) (imagehost.Uploader, string, error) {
	if cfg.IsProduction() && cfg.CloudinaryCloudName != "" {
		u, err := imagehost.NewCloudinaryUploader(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		return u, "", err
	}
	u, err := imagehost.NewLocalUploader(cfg.UploadDir)
	if err != nil {
		return nil, "", err
	}
	return u, u.Dir(), nil
}

func (app *application) serve() {
	app.logger.Infof("Starting server on %s", app.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		app.logger.Fatalf("Server error: %v", err)
	case sig := <-quit:
		app.logger.Infof("Received signal %s. Shutting down server...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.logger.Info("Signaling janitor to stop...")
	close(app.shutdownChan)
	select {
	case <-app.janitorDone:
		app.logger.Info("Janitor stopped.")
	case <-time.After(10 * time.Second):
		app.logger.Warn("Janitor did not stop in time.")
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Errorf("Graceful server shutdown failed: %v", err)
	} else {
		app.logger.Info("Server gracefully stopped.")
	}

	app.logger.Info("Application shut down complete.")
}

// runJanitor periodically drops expired entries from the in-memory rate
// limiters. Redis expires its keys on its own.
func (app *application) runJanitor() {
	defer close(app.janitorDone)

	if len(app.sweepers) == 0 {
		<-app.shutdownChan
		return
	}

	ticker := time.NewTicker(app.config.JanitorInterval)
	defer ticker.Stop()

	app.logger.Infof("Janitor started. Will run every %s.", app.config.JanitorInterval)

	for {
		select {
		case <-ticker.C:
			for name, s := range app.sweepers {
				remaining := s.Sweep()
				app.logger.WithFields(logrus.Fields{"limiter": name, "keys": remaining}).Debug("Janitor: swept rate limiter")
			}
		case <-app.shutdownChan:
			app.logger.Info("Janitor: Received shutdown signal. Stopping...")
			return
		}
	}
}
