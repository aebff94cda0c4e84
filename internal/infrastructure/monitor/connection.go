package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
)

// Probe checks one dependency. A nil probe marks the dependency disabled,
// which is how the in-memory storage driver runs.
type Probe func(ctx context.Context) error

// PostgresProbe pings the pool, nil when the pool is not configured.
func PostgresProbe(pool *pgxpool.Pool) Probe {
	if pool == nil {
		return nil
	}
	return pool.Ping
}

// RedisProbe pings the client, nil when Redis is disabled.
func RedisProbe(client *redislib.Client) Probe {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// InboxStats reports the usage inbox backlog.
type InboxStats interface {
	Stats() (buffer.Stats, error)
}

// Monitor polls the engine's dependencies and caches the last status.
type Monitor struct {
	postgres Probe
	redis    Probe
	inbox    InboxStats

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	timeout  time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}
	logger   *zap.Logger
}

func New(postgres, redis Probe, inbox InboxStats, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		postgres: postgres,
		redis:    redis,
		inbox:    inbox,
		interval: interval,
		timeout:  3 * time.Second,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	m.Refresh()
	return m
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline gates the inbox drain on storage reachability.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Refresh()
		case <-m.stopCh:
			return
		}
	}
}

// Refresh probes every dependency once and logs connectivity flips.
func (m *Monitor) Refresh() {
	status := Status{
		PostgreSQL: m.probe("postgresql", m.postgres),
		Redis:      m.probe("redis", m.redis),
		LastCheck:  time.Now(),
	}
	if m.inbox != nil {
		status.Inbox.Enabled = true
		st, err := m.inbox.Stats()
		if err != nil {
			m.logger.Warn("inbox stats check failed", zap.Error(err))
		} else {
			status.Inbox.Healthy = true
			status.InboxPending = st.Pending
			status.InboxDead = st.Dead
		}
	}

	m.mu.Lock()
	previous := m.status
	m.status = status
	m.mu.Unlock()

	if !previous.LastCheck.IsZero() && previous.Online() != status.Online() {
		m.logger.Warn("storage connectivity changed",
			zap.Bool("online", status.Online()),
			zap.Bool("postgresql", status.PostgreSQL.Healthy),
			zap.Bool("redis", status.Redis.Healthy))
	}
}

func (m *Monitor) probe(name string, p Probe) Component {
	if p == nil {
		return Component{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := p(ctx); err != nil {
		m.logger.Debug("dependency probe failed", zap.String("dependency", name), zap.Error(err))
		return Component{Enabled: true}
	}
	return Component{Enabled: true, Healthy: true}
}
