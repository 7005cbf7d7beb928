package server

import (
	"context"
	"log"
	"net/http"

	"school-notification-service/internal/config"
	hrest "school-notification-service/internal/handler/http"
	wshandler "school-notification-service/internal/handler/ws"
	"school-notification-service/internal/ledger"
	"school-notification-service/internal/middleware"
	"school-notification-service/internal/queue"
	"school-notification-service/internal/repository"
	"school-notification-service/internal/resolver"
	"school-notification-service/internal/router"
	"school-notification-service/internal/sender"
	"school-notification-service/internal/usecase"
	"school-notification-service/internal/worker"
	"school-notification-service/pkg/template"
	"school-notification-service/pkg/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server bundles the HTTP listener with the background workers so main can
// start and stop them together.
type Server struct {
	HTTP      *http.Server
	Queue     *queue.Queue
	Scheduler *worker.Scheduler
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	// --- Init repos ---
	notifRepo := repository.NewNotificationRepository(dbpool)
	deliveryRepo := repository.NewDeliveryRepository(dbpool)
	directory := repository.NewDirectory(dbpool)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- Auth ---
	verifier := middleware.NewTokenVerifier(cfg.JWTSecret)

	// --- Core pipeline ---
	audienceResolver := resolver.NewAudienceResolver(directory)
	deliveryLedger := ledger.New(deliveryRepo, logger, cfg.MaxRetries)

	// --- WS hub and handler ---
	hub := wshandler.NewHub(logger)
	socketHandler := wshandler.NewSocketHandler(hub, deliveryLedger, directory, verifier, logger)

	// --- Templates ---
	tmplService, err := template.NewTemplateService()
	if err != nil {
		log.Fatalf("failed to init templates: %v", err)
	}

	// --- Channel senders ---
	emailTransport := transport.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	smsTransport := transport.NewSMSSender(cfg.SMSBaseURL, cfg.SMSAPIKey, cfg.SMSSenderID)
	pushTransport := transport.NewPushSender(cfg.PushBaseURL, cfg.PushAPIKey)

	senders := []sender.Sender{
		sender.NewInAppSender(hub, logger),
		sender.NewEmailSender(emailTransport, tmplService, logger),
		sender.NewSMSSender(smsTransport, tmplService, logger),
		sender.NewPushSender(pushTransport, logger),
	}

	// --- Delivery queue ---
	q := queue.New(deliveryLedger, notifRepo, directory, senders, hub, logger,
		cfg.QueueTick, cfg.QueueBatchSize, cfg.SendTimeout)

	// --- Usecases ---
	uc := usecase.NewNotificationUsecase(notifRepo, audienceResolver, deliveryLedger, q, hub, logger)

	// --- Scheduler ---
	sched := worker.NewScheduler(notifRepo, uc, logger, cfg.ScheduleTick)

	go q.Start(context.Background())
	go sched.Start(context.Background())

	// --- Handlers ---
	restHandler := hrest.NewNotificationHandler(uc, q)

	// --- HTTP routes ---
	r := chi.NewRouter()
	r = router.SetupRoutes(r, restHandler, socketHandler, verifier, rdb).(*chi.Mux)

	return &Server{
		HTTP: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: r,
		},
		Queue:     q,
		Scheduler: sched,
	}
}
