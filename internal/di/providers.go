package di

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"libradesk/internal/audit"
	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/clock"
	"libradesk/internal/config"
	"libradesk/internal/membership"
	"libradesk/internal/notification"
	"libradesk/internal/platform/db"
	"libradesk/internal/platform/telemetry"
	"libradesk/internal/server"
	"libradesk/internal/sweep"
)

const shutdownTimeout = 15 * time.Second

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string
}

// TelemetryHandle flushes spans and measurements on shutdown.
type TelemetryHandle struct {
	*telemetry.Provider
}

// ProvideTelemetry installs the global tracer and meter providers.
func ProvideTelemetry(i do.Injector) (*TelemetryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	build := do.MustInvoke[BuildInfo](i)

	provider, err := telemetry.Setup(context.Background(), telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Version:      build.Version,
	})
	if err != nil {
		return nil, err
	}
	return &TelemetryHandle{Provider: provider}, nil
}

// DBHandle closes the pool on shutdown.
type DBHandle struct {
	*db.DB
}

func (h *DBHandle) Shutdown() error {
	return h.Close()
}

// ProvideDB opens the database and, when configured, creates the schema.
func ProvideDB(i do.Injector) (*DBHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{
		Driver:       cfg.Database.Driver,
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Database.BootstrapSchema {
		if err := conn.EnsureSchema(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
		}
		log.Info("database schema ensured")
	}

	log.Info("database connected", "driver", cfg.Database.Driver)
	return &DBHandle{DB: conn}, nil
}

func ProvideClock(do.Injector) (clock.Clock, error) {
	return clock.Real(), nil
}

func ProvideBookStore(i do.Injector) (*catalog.Store, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return catalog.NewStore(conn.Builder, do.MustInvoke[clock.Clock](i)), nil
}

func ProvideStudentStore(i do.Injector) (*membership.Store, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return membership.NewStore(conn.Builder), nil
}

func ProvideCatalogService(i do.Injector) (catalog.Service, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return catalog.NewService(
		conn.DB,
		do.MustInvoke[*catalog.Store](i),
		do.MustInvoke[clock.Clock](i),
		do.MustInvoke[*slog.Logger](i),
	), nil
}

func ProvideMembershipService(i do.Injector) (membership.Service, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return membership.NewService(
		conn.DB,
		do.MustInvoke[*membership.Store](i),
		do.MustInvoke[clock.Clock](i),
		do.MustInvoke[*slog.Logger](i),
	), nil
}

func ProvideCirculationService(i do.Injector) (circulation.Service, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return circulation.NewService(
		conn.DB,
		circulation.NewLedger(conn.Builder),
		do.MustInvoke[*catalog.Store](i),
		do.MustInvoke[*membership.Store](i),
		audit.NewLog(conn.Builder),
		do.MustInvoke[clock.Clock](i),
		do.MustInvoke[*slog.Logger](i),
	), nil
}

func ProvideNotificationStore(i do.Injector) (*notification.Store, error) {
	conn := do.MustInvoke[*DBHandle](i)
	return notification.NewStore(conn.DB), nil
}

// SenderHandle releases the transport behind the notification sender.
type SenderHandle struct {
	notification.Sender
	closer io.Closer
}

func (h *SenderHandle) Shutdown() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// ProvideSender picks the delivery transport from NOTIFY_TRANSPORT.
func ProvideSender(i do.Injector) (*SenderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	switch cfg.Notify.Transport {
	case "smtp":
		smtp := cfg.Notify.SMTP
		log.Info("notifications via smtp", "host", smtp.Host, "port", smtp.Port)
		return &SenderHandle{Sender: notification.NewSMTPSender(notification.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			User:     smtp.User,
			Password: smtp.Password,
			From:     smtp.From,
			FromName: smtp.FromName,
			Timeout:  smtp.Timeout(),
		})}, nil
	case "kafka":
		writer := notification.NewKafkaWriter(cfg.Notify.Kafka.Brokers, cfg.Notify.Kafka.Topic)
		log.Info("notifications via kafka", "brokers", cfg.Notify.Kafka.Brokers, "topic", cfg.Notify.Kafka.Topic)
		return &SenderHandle{Sender: notification.NewKafkaSender(writer), closer: writer}, nil
	default:
		return &SenderHandle{Sender: notification.NewLogSender(log)}, nil
	}
}

// DispatcherHandle drains the notification queue on shutdown.
type DispatcherHandle struct {
	*notification.Dispatcher
}

func (h *DispatcherHandle) Shutdown() error {
	h.Stop()
	return nil
}

func ProvideDispatcher(i do.Injector) (*DispatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	d := notification.NewDispatcher(
		do.MustInvoke[*SenderHandle](i),
		do.MustInvoke[*notification.Store](i),
		do.MustInvoke[clock.Clock](i),
		do.MustInvoke[*slog.Logger](i),
		notification.WithWorkers(cfg.Notify.Workers),
		notification.WithQueueSize(cfg.Notify.QueueSize),
		notification.WithRateLimit(cfg.Notify.RatePerSecond, 1),
	)
	d.Start()
	return &DispatcherHandle{Dispatcher: d}, nil
}

// SchedulerHandle stops the recurring sweep on shutdown.
type SchedulerHandle struct {
	*sweep.Scheduler
}

func (h *SchedulerHandle) Shutdown() error {
	h.Stop()
	return nil
}

func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	tel := do.MustInvoke[*TelemetryHandle](i)

	s := sweep.New(
		do.MustInvoke[circulation.Service](i),
		do.MustInvoke[*DispatcherHandle](i),
		do.MustInvoke[clock.Clock](i),
		log,
		sweep.WithInterval(cfg.Sweep.Interval()),
		sweep.WithDueSoonWindow(cfg.Sweep.DueSoonDays),
		sweep.WithOverdueCooldown(cfg.Sweep.OverdueCooldown()),
		sweep.WithMeterProvider(tel.MeterProvider()),
	)
	if cfg.Sweep.Enabled {
		s.Start()
	} else {
		log.Info("scheduled sweep disabled")
	}
	return &SchedulerHandle{Scheduler: s}, nil
}

// HTTPServerHandle stops the listener on shutdown.
type HTTPServerHandle struct {
	*server.Server
}

func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	conn := do.MustInvoke[*DBHandle](i)
	scheduler := do.MustInvoke[*SchedulerHandle](i)

	router := server.NewRouter(cfg.Server, log, conn.PingContext,
		catalog.NewHandler(do.MustInvoke[catalog.Service](i), log),
		membership.NewHandler(do.MustInvoke[membership.Service](i), log),
		circulation.NewHandler(do.MustInvoke[circulation.Service](i), circulation.HandlerConfig{
			DefaultLoanDays: cfg.Circulation.DefaultLoanDays,
			DueSoonDays:     cfg.Sweep.DueSoonDays,
		}, log),
		sweep.NewHandler(scheduler.Scheduler, log),
		notification.NewHandler(do.MustInvoke[*notification.Store](i), log),
	)

	srv := server.New(cfg.Server, router, log)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start http server: %w", err)
	}
	return &HTTPServerHandle{Server: srv}, nil
}
