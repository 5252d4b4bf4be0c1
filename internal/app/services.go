package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"spectrald/internal/config"
	"spectrald/internal/db"
	"spectrald/internal/engine"
	"spectrald/internal/eventbus"
	"spectrald/internal/link"
	"spectrald/internal/room"
	"spectrald/internal/routine"
	"spectrald/internal/store"
	"spectrald/internal/transport"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB  *db.DB
	Bus *eventbus.Bus

	// Record stores
	Devices   store.Devices
	Rooms     store.Rooms
	Snapshots store.Snapshots
	Routines  routine.Store

	// Engine state and device plumbing
	State     *engine.State
	Transport transport.Transport
	Link      *link.Manager

	// High-level services
	Orchestrator *room.Orchestrator
	Health       *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Devices = store.NewSQLiteDevices(database.DB)
	s.Rooms = store.NewSQLiteRooms(database.DB)
	s.Snapshots = store.NewSQLiteSnapshots(database.DB)
	s.Routines = routine.NewSQLiteStore(database.DB)

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.State = engine.NewState()

	s.Transport = transport.NewHTTPClient(
		cfg.Transport.Timeout.Duration(),
		cfg.Transport.PollInterval.Duration(),
	)

	s.Link = link.NewManager(s.Transport, s.Devices, s.Snapshots, s.State, s.Bus, link.Config{
		DebounceWindow: cfg.Link.DebounceWindow.Duration(),
		RateLimitRPS:   cfg.Link.RateLimitRPS,
	})

	s.Orchestrator = room.New(s.Devices, s.Rooms, s.Routines, s.Link, s.State, s.Bus)

	// Monitors report reachability and power changes out-of-band; fold
	// them back into the aggregate room flags as they arrive.
	reconcile := func(event eventbus.Event) {
		if err := s.Orchestrator.RepairAll(); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Repair pass failed")
		}
	}
	s.Bus.Subscribe(eventbus.TypeDeviceOnline, reconcile)
	s.Bus.Subscribe(eventbus.TypeDeviceOffline, reconcile)

	s.Health = NewHealthService(cfg, s.State)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	// Heal whatever the last run left behind before anything reads it.
	if err := s.Orchestrator.RepairAll(); err != nil {
		return err
	}

	// Reconnect known devices in the background; an unreachable fixture
	// must not hold up startup.
	devices, err := s.Devices.List()
	if err != nil {
		return err
	}
	for _, d := range devices {
		d := d
		go func() {
			if err := s.Link.Connect(ctx, d); err != nil {
				log.Warn().Err(err).Str("device", d.ID).Msg("Device not reachable on startup")
				return
			}
			if err := s.Link.StartMonitor(d.ID); err != nil {
				log.Warn().Err(err).Str("device", d.ID).Msg("Failed to start monitor")
			}
		}()
	}

	s.Health.Start(ctx)
	return nil
}

// ClearState drops every stored record, leaving an empty database.
func (s *Services) ClearState() error {
	for _, table := range []string{"devices", "rooms", "channel_snapshots", "routines"} {
		if _, err := s.DB.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Link != nil {
		s.Link.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
