package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/ticketinbox/api"
	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/cron"
	"github.com/customeros/ticketinbox/internal/listeners"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/repository"
	"github.com/customeros/ticketinbox/internal/tracing"
	"github.com/customeros/ticketinbox/services/events"
	"github.com/customeros/ticketinbox/services/imap"
	"github.com/customeros/ticketinbox/services/storage"
	"github.com/customeros/ticketinbox/services/ticketsync"
)

const (
	shutdownTimeout     = 15 * time.Second
	syncShutdownTimeout = 10 * time.Second
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	repositories *repository.Repositories
	publisher    *events.RabbitMQPublisher
	subscriber   *events.RabbitMQSubscriber
	listenCancel context.CancelFunc
	ticketSync   *ticketsync.SyncScheduler
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, ticketsDB *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(ticketsDB)

	var publisher *events.RabbitMQPublisher
	var syncEventPublisher interfaces.SyncEventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, appLogger, nil)
		if err != nil {
			appLogger.Warnf("RabbitMQ unavailable, sync events will only be logged: %v", err)
		} else {
			syncEventPublisher = publisher
		}
	}

	var messageArchive interfaces.MessageArchive
	archive, err := storage.NewArchiveFromConfig(cfg.ArchiveConfig)
	if err != nil {
		appLogger.Warnf("Raw message archive disabled: %v", err)
	} else if archive != nil {
		messageArchive = archive
	}

	ticketSync := ticketsync.NewSyncScheduler(ticketsync.Dependencies{
		Dialer:        imap.NewDialer(cfg.MailTicketSyncConfig, appLogger),
		Tickets:       repos.TicketRepository,
		Watermarks:    repos.WatermarkRepository,
		Notifications: repos.SyncLogRepository,
		Publisher:     syncEventPublisher,
		Archive:       messageArchive,
		Logger:        appLogger,
	}, ticketsync.OptionsFromConfig(cfg.MailTicketSyncConfig))

	var subscriber *events.RabbitMQSubscriber
	if publisher != nil {
		subscriber, err = events.NewRabbitMQSubscriber(cfg.AppConfig.RabbitMQURL, appLogger,
			listeners.NewSyncCommandListener(appLogger, ticketSync), nil)
		if err != nil {
			appLogger.Warnf("RabbitMQ sync commands disabled: %v", err)
			subscriber = nil
		}
	}

	cronManager := cron.NewCronManager(cfg, appLogger, kubernetesClient(appLogger), ticketSync)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		repositories: repos,
		publisher:    publisher,
		subscriber:   subscriber,
		ticketSync:   ticketSync,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes, leader election disabled: %v", err)
		return nil
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client, leader election disabled: %v", err)
		return nil
	}
	return clientset
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	api.RegisterRoutes(s.router, s.ticketSync, s.repositories, s.config.AppConfig.APIKey)

	if s.config.MailTicketSyncConfig.Enabled {
		if err := s.cronManager.Start(s.config.AppConfig.PodName, s.config.AppConfig.PodNamespace); err != nil {
			return err
		}
		s.log.Info("Ticket inbox sync trigger started")
	} else {
		s.log.Info("Ticket inbox sync trigger disabled, control surface only")
	}

	if s.subscriber != nil {
		var listenCtx context.Context
		listenCtx, s.listenCancel = context.WithCancel(context.Background())
		s.subscriber.Listen(listenCtx, events.QueueSyncCommands)
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Ticket inbox is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

// RunSyncOnce runs a single pass in the foreground. An interrupt requests an abort.
func (s *Server) RunSyncOnce(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer s.closeResources()

	state := s.ticketSync.StartTicketInboxSync()
	s.log.Infof("Sync pass %s started", state.PassID)

	done := make(chan error, 1)
	go func() {
		done <- s.ticketSync.Wait(context.Background())
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.log.Info("Interrupted, stopping sync pass")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.MailTicketSyncConfig.AbortTimeout()+time.Second)
		defer cancel()
		return s.ticketSync.Shutdown(shutdownCtx)
	}
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down successfully")
	}

	s.cronManager.Stop()
	s.stopSubscriber()

	syncCtx, syncCancel := context.WithTimeout(context.Background(), syncShutdownTimeout)
	defer syncCancel()
	if err := s.ticketSync.Shutdown(syncCtx); err != nil {
		s.log.Warnf("Ticket inbox sync stop timed out, state reset: %v", err)
	} else {
		s.log.Info("Ticket inbox sync stopped")
	}

	s.closeResources()
	return nil
}

func (s *Server) stopSubscriber() {
	if s.subscriber == nil {
		return
	}
	if s.listenCancel != nil {
		s.listenCancel()
	}
	if err := s.subscriber.Close(); err != nil {
		s.log.Warnf("Error closing RabbitMQ subscriber: %v", err)
	}
	s.subscriber = nil
}

func (s *Server) closeResources() {
	s.stopSubscriber()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Warnf("Error closing RabbitMQ publisher: %v", err)
		}
	}
	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()
}
