package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/audit"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/events"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/export"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/jobs"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/metrics"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/scheduler"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/tenant"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/upload"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/core/whatsapp"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/handlers"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/repositories"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/modules/engage/services"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/database"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"

	_ "github.com/MuhamadAgungGumelar/donor-engagement-be/cmd/engage-api/docs"
)

// @title Donor Engagement API
// @version 1.0
// @description Multi-tenant WhatsApp core for blood-donor engagement: webhook ingestion, conversations, delivery tracking and campaigns.
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	// Load config
	cfg := config.LoadConfig()
	utils.InitLogger(cfg.Env)
	log.Printf("🚀 Starting engage-api on port %s", cfg.Port)

	// Init database
	db, err := database.Open(context.Background(), database.Options{
		URL:             cfg.DatabaseURL,
		Debug:           !cfg.IsProduction(),
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect database: %v", err)
	}
	defer db.Close()

	// Event bus; the sink fans events out to realtime consumers
	sink, err := events.NewSinkFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize event sink: %v", err)
	}
	bus := events.NewBus(sink)
	defer bus.Close()

	m := metrics.New()

	// Init repositories (use GORM instance)
	customerRepo := repositories.NewCustomerRepo(db.GORM)
	conversationRepo := repositories.NewConversationRepo(db.GORM)
	messageRepo := repositories.NewMessageRepo(db.GORM)
	campaignRepo := repositories.NewCampaignRepo(db.GORM)
	unreadRepo := repositories.NewUnreadRepo(db.GORM)

	tenantResolver := tenant.NewResolver(db.DB)
	auditService := audit.NewService(db.GORM)
	jobService := jobs.NewService(db.GORM)

	// Outbound WhatsApp provider
	providerCfg, err := whatsapp.LoadProviderConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to load WhatsApp provider config: %v", err)
	}
	sender, err := whatsapp.NewSender(providerCfg)
	if err != nil {
		log.Fatalf("Failed to initialize WhatsApp sender: %v", err)
	}
	mediaFetcher := whatsapp.NewMediaFetcher(providerCfg, &http.Client{Timeout: 30 * time.Second})

	blobStore, err := upload.NewProviderFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	llmService, err := llm.NewService(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}

	log.Printf("📱 Using WhatsApp provider: %s", sender.GetProviderName())
	log.Printf("🗄️  Using blob store: %s", blobStore.GetProviderName())
	log.Printf("📣 Using event sink: %s", sink.Name())
	log.Printf("🤖 Using LLM provider: %s", llmService.GetProviderName())

	// Init services
	identityService := services.NewIdentityService(customerRepo, cfg.DefaultRegion)
	router := services.NewConversationRouter(conversationRepo, unreadRepo, auditService, bus)
	campaignService := services.NewCampaignService(campaignRepo, identityService, auditService, bus, m)

	ingestionService := services.NewIngestionService(services.IngestionDeps{
		Tenants:   tenantResolver,
		Secrets:   services.SecretsFromConfig(cfg),
		Identity:  identityService,
		Router:    router,
		Messages:  messageRepo,
		Campaigns: campaignService,
		Jobs:      jobService,
		Bus:       bus,
		Metrics:   m,
	})
	statusService := services.NewDeliveryStatusService(tenantResolver, services.SecretsFromConfig(cfg), messageRepo, campaignService, bus, m)

	unreadService := services.NewUnreadService(unreadRepo, conversationRepo, messageRepo)
	unreadService.Subscribe(bus)

	dispatchService := services.NewDispatchService(services.DispatchDeps{
		Campaigns:   campaignRepo,
		CampaignSvc: campaignService,
		Customers:   customerRepo,
		Router:      router,
		Messages:    messageRepo,
		Sender:      sender,
		Jobs:        jobService,
		Bus:         bus,
		SendTimeout: cfg.WhatsAppSendTimeout,
	})
	mediaService := services.NewMediaService(messageRepo, mediaFetcher, blobStore)
	draftService := services.NewDraftService(conversationRepo, customerRepo, messageRepo, llmService)
	reportService := services.NewReportService(campaignRepo, customerRepo, export.NewService())

	// Background workers
	jobService.NewWorker(jobs.WorkerConfig{
		Queue:       jobs.DefaultQueue,
		Concurrency: cfg.WorkerConcurrency,
		Timeout:     2 * cfg.WhatsAppSendTimeout,
		Observer:    m.JobProcessed,
	}).
		Handle(services.JobSendContact, dispatchService.HandleSendContact).
		Handle(services.JobFetchMedia, mediaService.HandleFetchMedia)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := jobService.StartWorkers(ctx); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}
	defer jobService.StopWorkers()

	sched := scheduler.NewScheduler()
	tasks := []scheduler.Task{
		{
			Name:     "unread-recalculate",
			Schedule: cfg.UnreadSweepCron,
			Timeout:  10 * time.Minute,
			Run: func(ctx context.Context) error {
				n, err := unreadService.RecalculateAll(ctx)
				if n > 0 {
					utils.LogInfo("unread counters repaired", map[string]interface{}{"repaired": n})
				}
				return err
			},
		},
		{
			Name:     "campaign-sweep",
			Schedule: cfg.CampaignSweepCron,
			Timeout:  time.Minute,
			Run:      dispatchService.SweepSending,
		},
		{
			Name:     "job-cleanup",
			Schedule: cfg.JobCleanupCron,
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) error {
				return jobService.Maintain(ctx, 10*time.Minute, 7*24*time.Hour)
			},
		},
		{
			Name:     "audit-cleanup",
			Schedule: cfg.JobCleanupCron,
			Timeout:  5 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := auditService.Purge(ctx, time.Duration(cfg.AuditRetentionDays)*24*time.Hour)
				return err
			},
		},
	}
	for _, task := range tasks {
		if err := sched.Add(task); err != nil {
			log.Fatalf("Failed to schedule %s: %v", task.Name, err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// Init Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Donor Engagement API",
		ReadTimeout:  cfg.WebhookTimeout * 2,
		WriteTimeout: cfg.WebhookTimeout * 2,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(m.Middleware())

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/metrics", m.Handler())

	handlers.Register(app, handlers.Handlers{
		Health:        handlers.NewHealthHandler(db.DB, sender.GetProviderName()),
		Webhook:       handlers.NewWebhookHandler(ingestionService, statusService, cfg.WebhookTimeout),
		Conversations: handlers.NewConversationHandler(router, unreadService, draftService),
		Campaigns:     handlers.NewCampaignHandler(campaignService, dispatchService, reportService),
		Customers:     handlers.NewCustomerHandler(identityService),
		Media:         handlers.NewMediaHandler(mediaService),
		WhatsApp:      handlers.NewWhatsAppHandler(tenantResolver, cfg.DefaultRegion),
		History:       handlers.NewHistoryHandler(auditService),
	})

	// Start server
	go func() {
		log.Printf("✅ engage-api running at :%s", cfg.Port)
		log.Printf("📄 Swagger UI: http://localhost:%s/swagger/", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down engage-api...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		utils.LogError("graceful shutdown failed", err, nil)
	}
}
