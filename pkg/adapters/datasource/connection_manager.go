package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxPools             = 32
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
	healthCheckTimeout          = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	MaxPools     int
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager keeps one pool per target database, evicts pools idle
// longer than the TTL and health-checks a pool before handing it out again.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*ManagedConnection // key: target id
	cfg          ConnectionManagerConfig
	ttl          time.Duration
	stopped      bool
	stopChan     chan struct{}
	logger       *zap.Logger
	healthConfig *retry.Config
	now          func() time.Time
}

// ManagedConnection represents a pooled connection for one target.
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = DefaultMaxPools
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections:  make(map[string]*ManagedConnection),
		cfg:          cfg,
		ttl:          time.Duration(cfg.TTLMinutes) * time.Minute,
		stopChan:     make(chan struct{}),
		logger:       logger.Named("connections"),
		healthConfig: &retry.Config{MaxAttempts: 2, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		now:          time.Now,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// Config returns the effective pool settings.
func (m *ConnectionManager) Config() ConnectionManagerConfig {
	return m.cfg
}

// GetOrCreateConnection returns the pool for key, opening it with open when
// none exists or the existing one fails its health check.
func (m *ConnectionManager) GetOrCreateConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.RLock()
	managed, exists := m.connections[key]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := retry.Do(healthCtx, m.healthConfig, func(int) error {
			return managed.connector.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("target", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key, managed)
			return m.createConnection(ctx, key, open)
		}

		managed.lastUsed = m.now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createConnection(ctx, key, open)
}

// createConnection opens a new pool with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createConnection(ctx context.Context, key string, open PoolOpener) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = m.now()
		return managed.connector, nil
	}

	if len(m.connections) >= m.cfg.MaxPools {
		return nil, fmt.Errorf("connection manager has reached maximum pools (%d)", m.cfg.MaxPools)
	}

	connector, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func(int) (PoolConnector, error) {
		c, err := open(ctx, m.cfg)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		m.logger.Error("failed to open pool after retries",
			zap.String("target", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to open pool for %s: %w", key, err)
	}

	m.connections[key] = &ManagedConnection{
		connector: connector,
		lastUsed:  m.now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("target", key),
		zap.String("type", connector.GetType()),
		zap.Int("total_pools", len(m.connections)),
	)

	return connector, nil
}

// removeConnection closes and forgets the pool for key if it is still stale.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string, stale *ManagedConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed == stale {
		if err := managed.connector.Close(); err != nil {
			m.logger.Debug("error closing pool", zap.String("target", key), zap.Error(err))
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("target", key))
	}
}

// Evict closes the pool for key, if any.
func (m *ConnectionManager) Evict(key string) {
	m.mu.RLock()
	managed := m.connections[key]
	m.mu.RUnlock()
	if managed != nil {
		m.removeConnection(key, managed)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Lock ordering is manager lock then connection lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := m.now()
	var expiredKeys []string

	for key, managed := range m.connections {
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("target", key),
				zap.Duration("idle_time", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, key := range expiredKeys {
		if err := m.connections[key].connector.Close(); err != nil {
			m.logger.Debug("error closing pool", zap.String("target", key), zap.Error(err))
		}
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		_ = managed.connector.Close()
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxPools:          m.cfg.MaxPools,
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.connections {
		stats.ConnectionsByType[managed.connector.GetType()]++

		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	MaxPools          int            `json:"max_pools"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
