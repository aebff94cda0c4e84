package services

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase/settlement"
)

// ScheduledSettlements is the part of the settlement use case the
// scheduler drives.
type ScheduledSettlements interface {
	ScheduledContracts(ctx context.Context) ([]settlement.ScheduledContract, error)
	RunScheduled(ctx context.Context, contractID string) (*domain.SettlementExecution, error)
}

// SettlementScheduler fires time_based contracts on their cron schedule.
// The set of contracts is re-read every refresh interval, so contracts
// created or deactivated through the API are picked up without restart.
type SettlementScheduler struct {
	settlements ScheduledSettlements
	logger      *zap.Logger
	cron        *cron.Cron
	refresh     time.Duration
	timeout     time.Duration

	mu      sync.Mutex
	entries map[string]scheduledEntry
}

type scheduledEntry struct {
	id       cron.EntryID
	schedule string
}

func NewSettlementScheduler(settlements ScheduledSettlements, refresh, timeout time.Duration, logger *zap.Logger) *SettlementScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if refresh <= 0 {
		refresh = time.Minute
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &SettlementScheduler{
		settlements: settlements,
		logger:      logger,
		cron:        cron.New(),
		refresh:     refresh,
		timeout:     timeout,
		entries:     make(map[string]scheduledEntry),
	}
	return s
}

// Start loads the schedules and launches the cron loop.
func (s *SettlementScheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}
	spec := "@every " + s.refresh.String()
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.Sync(ctx); err != nil {
			s.logger.Error("settlement schedule refresh failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("settlement scheduler started", zap.Int("contracts", s.Len()))
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *SettlementScheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("settlement scheduler stopped")
}

// Sync reconciles cron entries with the active time_based contracts.
func (s *SettlementScheduler) Sync(ctx context.Context) error {
	contracts, err := s.settlements.ScheduledContracts(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(contracts))
	for _, c := range contracts {
		seen[c.ID] = true
		if entry, ok := s.entries[c.ID]; ok {
			if entry.schedule == c.Schedule {
				continue
			}
			s.cron.Remove(entry.id)
			delete(s.entries, c.ID)
		}
		contractID := c.ID
		id, err := s.cron.AddFunc(c.Schedule, func() { s.fire(contractID) })
		if err != nil {
			s.logger.Warn("invalid settlement schedule",
				zap.String("contract_id", c.ID),
				zap.String("schedule", c.Schedule),
				zap.Error(err))
			continue
		}
		s.entries[c.ID] = scheduledEntry{id: id, schedule: c.Schedule}
	}
	for contractID, entry := range s.entries {
		if !seen[contractID] {
			s.cron.Remove(entry.id)
			delete(s.entries, contractID)
		}
	}
	return nil
}

// Len returns the number of scheduled contracts.
func (s *SettlementScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *SettlementScheduler) fire(contractID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	exec, err := s.settlements.RunScheduled(ctx, contractID)
	if err != nil {
		s.logger.Error("scheduled settlement failed", zap.String("contract_id", contractID), zap.Error(err))
		return
	}
	s.logger.Info("scheduled settlement executed",
		zap.String("contract_id", contractID),
		zap.String("execution_id", exec.ID))
}
