// Package di wires the libradesk services together.
package di

import (
	"log/slog"

	"github.com/samber/do/v2"

	"libradesk/internal/catalog"
	"libradesk/internal/circulation"
	"libradesk/internal/clock"
	"libradesk/internal/config"
	"libradesk/internal/membership"
	"libradesk/internal/notification"
)

// NewContainer registers every provider. Nothing is constructed until
// Bootstrap invokes it.
func NewContainer(cfg *config.Config, log *slog.Logger, build BuildInfo) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)
	do.ProvideValue(injector, build)
	do.Provide(injector, ProvideClock)
	do.Provide(injector, ProvideTelemetry)
	do.Provide(injector, ProvideDB)

	// Stores and services
	do.Provide(injector, ProvideBookStore)
	do.Provide(injector, ProvideStudentStore)
	do.Provide(injector, ProvideCatalogService)
	do.Provide(injector, ProvideMembershipService)
	do.Provide(injector, ProvideCirculationService)
	do.Provide(injector, ProvideNotificationStore)

	// Workers
	do.Provide(injector, ProvideSender)
	do.Provide(injector, ProvideDispatcher)
	do.Provide(injector, ProvideScheduler)

	// Server
	do.Provide(injector, ProvideHTTPServer)

	return injector
}

// Bootstrap constructs the services in dependency order and starts the
// dispatcher, the scheduler and the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	steps := []func() error{
		invoke[*TelemetryHandle](injector),
		invoke[clock.Clock](injector),
		invoke[*DBHandle](injector),
		invoke[catalog.Service](injector),
		invoke[membership.Service](injector),
		invoke[circulation.Service](injector),
		invoke[*notification.Store](injector),
		invoke[*DispatcherHandle](injector),
		invoke[*SchedulerHandle](injector),
		invoke[*HTTPServerHandle](injector),
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](injector do.Injector) func() error {
	return func() error {
		_, err := do.Invoke[T](injector)
		return err
	}
}
