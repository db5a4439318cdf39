package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/car-rental/config"
	"github.com/ds124wfegd/car-rental/internal/database"
	"github.com/ds124wfegd/car-rental/internal/database/memory"
	repository "github.com/ds124wfegd/car-rental/internal/database/postgres"
	"github.com/ds124wfegd/car-rental/internal/entity"
	"github.com/ds124wfegd/car-rental/internal/notify"
	"github.com/ds124wfegd/car-rental/internal/service"
	"github.com/ds124wfegd/car-rental/internal/transport"
	"github.com/ds124wfegd/car-rental/internal/worker"
	"github.com/ds124wfegd/car-rental/pkg/gateway"
	"github.com/ds124wfegd/car-rental/pkg/kafka"
	"github.com/ds124wfegd/car-rental/pkg/postgres"
	"github.com/ds124wfegd/car-rental/pkg/queue"
	"github.com/ds124wfegd/car-rental/pkg/rabbitMQ"
	"github.com/ds124wfegd/car-rental/pkg/redis"
	"github.com/ds124wfegd/car-rental/pkg/scheduler"
	"github.com/ds124wfegd/car-rental/pkg/telegram"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(logrus.StandardLogger().WriterLevel(logrus.ErrorLevel), "", 0),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// closer is released on shutdown, in reverse order of creation.
type closer struct {
	name  string
	close func() error
}

func NewServer(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(cfg.App.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(); err != nil {
				logrus.Errorf("failed to close %s: %v", closers[i].name, err)
			}
		}
	}()

	clock := clockwork.NewRealClock()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	closers = append(closers, closer{"store", store.Close})

	// Events: Kafka for the lifecycle stream, RabbitMQ for staff.
	var publishers service.Fanout
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(&cfg.Kafka)
		closers = append(closers, closer{"kafka producer", producer.Close})
		publishers = append(publishers, service.NewKafkaEventAdapter(producer))
	}
	if cfg.RabbitMQ.Enabled {
		rabbit, err := rabbitMQ.NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			logrus.Errorf("Failed to initialize RabbitMQ: %v. Staff notifications disabled", err)
		} else {
			closers = append(closers, closer{"rabbitmq", rabbit.Close})
			publishers = append(publishers, service.NewStaffNotificationAdapter(rabbit))
			startNotifier(ctx, cfg, rabbit)
		}
	}
	var events service.EventPublisher
	if len(publishers) > 0 {
		events = publishers
	}

	var (
		paymentGateway service.PaymentGateway
		callbackParser transport.NotificationParser
	)
	if cfg.Gateway.Provider == "xendit" {
		xnd := gateway.NewXendit(&cfg.Gateway)
		paymentGateway = xnd
		callbackParser = xnd
		logrus.Info("Xendit payment gateway enabled")
	} else {
		logrus.Warn("No payment gateway configured, card and QR payments are verified manually")
	}

	// Delayed expiry tasks ride on Redis; the sweeper covers a lost task.
	var (
		redisQueue    *queue.RedisQueue
		taskPublisher service.TaskPublisher
		dlq           queue.DLQHandler
	)
	if cfg.Queue.Enabled {
		redisQueue, err = openQueue(ctx, cfg, &closers)
		if err != nil {
			logrus.Errorf("Failed to initialize Redis queue: %v. Continuing without queue...", err)
		} else {
			taskPublisher = service.NewQueueAdapter(redisQueue)
			dlq = redisQueue.DLQ()
		}
	}

	bookingOpts := service.DefaultBookingOptions()
	bookingOpts.LockTTL = cfg.Booking.LockTTL
	bookingService := service.NewBookingService(store, clock, paymentGateway, events, taskPublisher, bookingOpts)
	availabilityService := service.NewAvailabilityService(store, clock)
	checkinService := service.NewCheckinService(store, clock, events, service.CheckinOptions{
		Location:           cfg.Location(),
		RestrictToStartDay: cfg.Checkin.RestrictToStartDay,
	})

	if redisQueue != nil {
		taskHandler := queue.NewTaskHandler(bookingService, cfg.Server.RequestTimeout)
		if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
			logrus.Errorf("Queue subscriber error: %v", err)
		}
	}

	sweeper := worker.NewExpirySweeper(bookingService, clock, cfg.Worker.SweepInterval, cfg.Worker.BatchSize)
	sweeper.Start(ctx)

	hygiene := scheduler.New(cfg.Worker.SweepInterval)
	err = hygiene.AddJob("expiry-hygiene", cfg.Worker.HygieneSpec, func(ctx context.Context) error {
		_, err := sweeper.SweepExpired(ctx)
		return err
	})
	if err != nil {
		logrus.Fatalf("Failed to schedule hygiene job: %v", err)
	}
	hygiene.Start(ctx)

	if cfg.Server.Mode == "release" || cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := transport.InitRoutes(transport.Handlers{
		Cars:         transport.NewCarHandler(availabilityService, cfg.Location()),
		Reservations: transport.NewReservationHandler(bookingService),
		Operations:   transport.NewOperationsHandler(checkinService, sweeper, dlq),
		Webhook:      transport.NewWebhookHandler(bookingService, callbackParser),
	}, cfg.Server.RequestTimeout)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Infof("App Started on %s", cfg.GetServerAddress())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Info("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	sweeper.Stop()
	hygiene.Stop()
	cancel()
	if redisQueue != nil {
		if err := redisQueue.Close(); err != nil {
			logrus.Errorf("failed to close queue: %v", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	if cfg.Storage.Driver == "memory" {
		logrus.Warn("Using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		seedFleet(store)
		return store, nil
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	isolation, err := repository.ParseIsolation(cfg.Database.Isolation)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewStore(db, repository.Options{
		Isolation: isolation,
		TxRetries: cfg.Database.TxRetries,
	}), nil
}

func openQueue(ctx context.Context, cfg *config.Config, closers *[]closer) (*queue.RedisQueue, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := redis.NewRedisClient(pingCtx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, closer{"redis", client.Close})

	q := queue.NewRedisQueue(client, queue.NewRedisQueueConfig(&cfg.Queue))
	logrus.Info("Redis queue initialized")
	return q, nil
}

func startNotifier(ctx context.Context, cfg *config.Config, consumer notify.Consumer) {
	if !cfg.Telegram.Enabled {
		logrus.Warn("Telegram bot disabled, staff notifications are queued but not delivered")
		return
	}

	notifier := notify.NewNotifier(telegram.NewBot(cfg.Telegram.BotToken), cfg.Telegram.ChatID)
	if err := notifier.Run(ctx, consumer); err != nil {
		logrus.Errorf("Failed to start staff notifier: %v", err)
		return
	}
	logrus.Info("Staff notifier started")
}

// seedFleet gives the in-memory store a few cars to book.
func seedFleet(store *memory.Store) {
	fleet := []entity.Car{
		{Brand: "Toyota", Model: "Yaris", PlateNumber: "1AB-1234", PricePerDay: 1200, Mileage: 18000},
		{Brand: "Honda", Model: "City", PlateNumber: "2CD-5678", PricePerDay: 1400, Mileage: 9500},
		{Brand: "Toyota", Model: "Fortuner", PlateNumber: "3EF-9012", PricePerDay: 2800, Mileage: 42000},
	}
	now := time.Now()
	for _, car := range fleet {
		car.CreatedAt = now
		car.UpdatedAt = now
		store.AddCar(car)
	}
}
