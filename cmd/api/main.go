package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"cleanhub/internal/config"
	"cleanhub/internal/database"
	"cleanhub/internal/middleware"
	"cleanhub/internal/modules/admin"
	"cleanhub/internal/modules/payment"
	"cleanhub/internal/notify"
	jwtsvc "cleanhub/internal/pkg/jwt"
	"cleanhub/internal/repository"
	"cleanhub/internal/stripeclient"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("level=warn msg=.env not loaded err=%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	draftRepo := repository.NewDraftRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	planRepo := repository.NewPlanRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)

	stripeClient, err := stripeclient.New(stripeclient.Config{
		SecretKey:  cfg.StripeSecretKey,
		Currency:   cfg.StripeCurrency,
		APIBaseURL: cfg.StripeAPIBase,
	}, log.Printf)
	if err != nil {
		// Booking confirmations still work; upgrades will fail and be retried.
		log.Printf("level=warn msg=stripe client disabled err=%v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = config.NewRedisClient()
		if redisClient == nil {
			log.Printf("level=warn msg=redis unreachable, in-flight guard disabled")
		} else {
			defer redisClient.Close()
		}
	}

	hub := notify.NewHub()
	defer hub.Close()

	sender, err := newSender(cfg)
	if err != nil {
		log.Fatalf("notify sender: %v", err)
	}
	defer sender.Close()

	templates, err := notify.LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("notify templates: %v", err)
	}
	dispatcher := notify.NewDispatcher(sender, templates, hub, notify.DispatcherConfig{
		AdminEmail: cfg.AdminEmail,
		Timeout:    cfg.NotifyTimeout,
	}, log.Printf)

	deps := payment.Deps{
		Verifier:      payment.NewVerifier(cfg.StripeWebhookSecret),
		Drafts:        draftRepo,
		Bookings:      bookingRepo,
		Catalog:       catalogRepo,
		Plans:         planRepo,
		Subscriptions: subscriptionRepo,
		Events:        eventRepo,
		Notifier:      dispatcher,
		Guard:         payment.NewRedisGuard(redisClient, cfg.InflightTTL),
	}
	if stripeClient != nil {
		deps.Processor = stripeClient
	}
	paymentService := payment.NewService(deps, log.Printf)
	paymentHandler := payment.NewHandler(paymentService, log.Printf)
	log.Printf("level=info msg=webhook routes registered types=%s", strings.Join(paymentService.Router().Types(), ","))

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)
	adminService := admin.NewService(eventRepo, subscriptionRepo, paymentService)
	origins := corsOrigins()
	adminHandler := admin.NewHandler(adminService, hub, origins, log.Printf)

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID(), gin.Logger(), middleware.ErrorLogger(), middleware.CORS(origins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// public: the processor authenticates with its signature
		paymentHandler.RegisterPublicRoutes(v1)

		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.JWTAuth(j), middleware.AdminOnly())
		{
			adminHandler.RegisterRoutes(adminGroup)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info msg=http server listening addr=%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("level=error msg=shutdown failed err=%v", err)
	}
	log.Printf("level=info msg=http server stopped")
}

func newSender(cfg *config.Config) (notify.Sender, error) {
	switch cfg.NotifyTransport {
	case config.TransportSMTP:
		return notify.NewSMTPSender(smtpConfig(cfg), log.Printf), nil
	case config.TransportAMQP:
		return notify.NewAMQPSender(cfg.AMQPURL, cfg.AMQPQueue, log.Printf)
	case config.TransportKafka:
		return notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic, log.Printf), nil
	default:
		return notify.NewLogSender(log.Printf), nil
	}
}

func smtpConfig(cfg *config.Config) notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}
}

func corsOrigins() []string {
	var out []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
