package manager

import (
	"context"
	"fmt"

	"github.com/iotforge/device-registry/internal/announce"
	"github.com/iotforge/device-registry/internal/device"
	"github.com/iotforge/device-registry/internal/expose"
	"github.com/iotforge/device-registry/internal/infrastructure/logging"
)

// Journal records registration lifecycle events for observability. Writes
// are fire-and-forget; the manager never blocks or fails on the journal.
type Journal interface {
	WriteRegistration(event, clientID string, serviceCount int)
	WriteAllocation(clientID, serviceKey, serviceType string, deviceInstance int)
}

// noopJournal is used when no time-series backend is configured.
type noopJournal struct{}

func (noopJournal) WriteRegistration(string, string, int) {}

func (noopJournal) WriteAllocation(string, string, string, int) {}

// Manager owns the registration event loop.
//
// All registry and exposer state is touched exclusively from Run's
// goroutine; announcements arrive serialised over the listener's channel, so
// no component behind the manager needs locks.
type Manager struct {
	registry  *device.Registry
	exposer   *expose.Exposer
	announcer *instanceAnnouncer
	journal   Journal
	events    <-chan announce.Event
	logger    *logging.Logger
}

// New creates a manager wiring the registry, exposer and reply publisher to
// the announcement stream. journal may be nil.
func New(
	registry *device.Registry,
	exposer *expose.Exposer,
	publisher Publisher,
	events <-chan announce.Event,
	journal Journal,
	logger *logging.Logger,
) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	if journal == nil {
		journal = noopJournal{}
	}
	return &Manager{
		registry:  registry,
		exposer:   exposer,
		announcer: &instanceAnnouncer{publisher: publisher},
		journal:   journal,
		events:    events,
		logger:    logger,
	}
}

// Run consumes announcement events until ctx is cancelled. It is the single
// writer of registration state and must not be started twice.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("registration manager started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("registration manager stopping")
			return ctx.Err()
		case event, ok := <-m.events:
			if !ok {
				return nil
			}
			m.dispatch(ctx, event)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, event announce.Event) {
	switch event.Kind {
	case announce.EventConnect:
		if err := m.handleConnect(ctx, event); err != nil {
			m.logger.Error("connect announcement failed",
				"client_id", event.ClientID,
				"error", err,
			)
		}
	case announce.EventDisconnect:
		m.handleDisconnect(ctx, event)
	}
}

// handleConnect reconciles a client's declared services with what is
// currently registered for it.
//
// Services no longer declared (or redeclared under a different type) are
// torn down first. Then every declared key is allocated; a storage failure
// aborts the whole event before anything is exposed or replied, so the
// device sees either a complete answer or none and retries. Exposure and
// the reply come last; failures there are logged but the committed
// allocations stand.
func (m *Manager) handleConnect(ctx context.Context, event announce.Event) error {
	reconnect := len(m.registry.ActiveServices(event.ClientID)) > 0

	m.retractStale(ctx, event)

	allocated := make([]*device.ServiceInstance, 0, len(event.Services))
	for serviceKey, serviceType := range event.Services {
		svc, err := m.registry.Allocate(ctx, event.ClientID, serviceKey, serviceType)
		if err != nil {
			return fmt.Errorf("allocating %s/%s: %w", serviceKey, serviceType, err)
		}
		allocated = append(allocated, svc)
	}

	for _, svc := range allocated {
		if svc.Fresh {
			m.journal.WriteAllocation(svc.ClientID, svc.ServiceKey, svc.ServiceType, svc.DeviceInstance)
			svc.Fresh = false
		}
		if err := m.exposer.Expose(ctx, svc); err != nil {
			m.logger.Error("exposing service failed",
				"client_id", svc.ClientID,
				"service_key", svc.ServiceKey,
				"error", err,
			)
		}
	}

	if err := m.announcer.Reply(event.ClientID, allocated); err != nil {
		m.logger.Error("instance reply failed",
			"client_id", event.ClientID,
			"error", err,
		)
	}

	lifecycle := "connect"
	if reconnect {
		lifecycle = "reconnect"
	}
	m.journal.WriteRegistration(lifecycle, event.ClientID, len(allocated))

	m.logger.Info("device registered",
		"client_id", event.ClientID,
		"services", len(allocated),
		"reconnect", reconnect,
	)
	return nil
}

// retractStale tears down active services the new announcement no longer
// declares, including keys redeclared under a different service type.
func (m *Manager) retractStale(ctx context.Context, event announce.Event) {
	for _, svc := range m.registry.ActiveServices(event.ClientID) {
		declaredType, declared := event.Services[svc.ServiceKey]
		if declared && declaredType == svc.ServiceType {
			continue
		}

		m.registry.Release(svc.ClientID, svc.ServiceKey)
		if err := m.exposer.Retract(ctx, svc.ClientID, svc.ServiceKey); err != nil {
			m.logger.Error("retracting stale service failed",
				"client_id", svc.ClientID,
				"service_key", svc.ServiceKey,
				"error", err,
			)
		}
		m.logger.Info("service withdrawn from announcement",
			"client_id", svc.ClientID,
			"service_key", svc.ServiceKey,
			"service_type", svc.ServiceType,
		)
	}
}

// handleDisconnect tears down everything a client had active. The services
// field of the announcement, if present, is ignored; disconnect means the
// whole client is gone.
func (m *Manager) handleDisconnect(ctx context.Context, event announce.Event) {
	released := m.registry.ReleaseAll(event.ClientID)
	if err := m.exposer.RetractAll(ctx, event.ClientID); err != nil {
		m.logger.Error("retracting services on disconnect failed",
			"client_id", event.ClientID,
			"error", err,
		)
	}

	m.journal.WriteRegistration("disconnect", event.ClientID, len(released))
	m.logger.Info("device deregistered",
		"client_id", event.ClientID,
		"services", len(released),
	)
}
