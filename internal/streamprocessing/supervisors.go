package streamprocessing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/evsrc/runtime/internal/streams"
	"github.com/evsrc/runtime/internal/telemetry"
	"github.com/evsrc/runtime/tenancy"
)

// Supervisors provides the [Supervisor] of each tenant, creating them on
// demand.
type Supervisors struct {
	Streams      streams.Stores
	States       *StateRepository
	IdleInterval time.Duration
	Telemetry    *telemetry.Provider
	Logger       *slog.Logger

	m           sync.Mutex
	supervisors map[tenancy.ID]*Supervisor
}

// ForTenant returns the supervisor of the given tenant.
func (s *Supervisors) ForTenant(tenant tenancy.ID) (*Supervisor, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if sup, ok := s.supervisors[tenant]; ok {
		return sup, nil
	}

	store, err := s.Streams.ForTenant(tenant)
	if err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sup := &Supervisor{
		Tenant:       tenant,
		Stream:       store,
		States:       s.States,
		IdleInterval: s.IdleInterval,
		Telemetry:    s.Telemetry,
		Logger: logger.With(
			slog.String("tenant", tenant.String()),
		),
	}

	if s.supervisors == nil {
		s.supervisors = map[tenancy.ID]*Supervisor{}
	}
	s.supervisors[tenant] = sup

	return sup, nil
}

// Notify wakes the given tenant's stream processors that read from the given
// stream.
func (s *Supervisors) Notify(tenant tenancy.ID, scope streams.ScopeID, stream streams.ID) {
	s.m.Lock()
	sup, ok := s.supervisors[tenant]
	s.m.Unlock()

	if ok {
		sup.Notify(scope, stream)
	}
}

// Shutdown stops the stream processors of every tenant.
func (s *Supervisors) Shutdown() {
	s.m.Lock()
	supervisors := s.supervisors
	s.supervisors = nil
	s.m.Unlock()

	for _, sup := range supervisors {
		sup.Shutdown()
	}
}
