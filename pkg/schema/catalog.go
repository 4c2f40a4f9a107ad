// Package schema caches per-target schema snapshots used to build prompts.
package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultTTL is how long a snapshot is served before it is fetched again.
const DefaultTTL = 5 * time.Minute

const fetchTimeout = 30 * time.Second

// TargetResolver resolves a TargetDB identifier to its descriptor.
type TargetResolver interface {
	Get(id string) (models.TargetDescriptor, error)
}

// Catalog provides schema snapshots for target databases.
type Catalog interface {
	// Snapshot returns the cached snapshot for targetID, fetching it when
	// missing or older than the TTL. Fetch failures wrap ErrSchemaUnavailable.
	Snapshot(ctx context.Context, targetID string) (*models.SchemaSnapshot, error)

	// Invalidate drops the cached snapshot for targetID.
	Invalidate(targetID string)
}

type cachedCatalog struct {
	targets  TargetResolver
	adapters datasource.AdapterFactory
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.RWMutex
	snapshots map[string]*models.SchemaSnapshot
	group     singleflight.Group
}

var _ Catalog = (*cachedCatalog)(nil)

// NewCatalog creates a Catalog that fetches schemas through the adapter factory.
func NewCatalog(targets TargetResolver, adapters datasource.AdapterFactory, ttl time.Duration, logger *zap.Logger) Catalog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &cachedCatalog{
		targets:   targets,
		adapters:  adapters,
		ttl:       ttl,
		logger:    logger.Named("schema"),
		now:       time.Now,
		snapshots: make(map[string]*models.SchemaSnapshot),
	}
}

func (c *cachedCatalog) Snapshot(ctx context.Context, targetID string) (*models.SchemaSnapshot, error) {
	target, err := c.targets.Get(targetID)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	snap, ok := c.snapshots[targetID]
	c.mu.RUnlock()
	if ok && c.now().Sub(snap.FetchedAt) < c.ttl {
		return snap, nil
	}

	// Concurrent misses for one target share a single fetch. The fetch is
	// detached from the caller so one cancelled request does not fail the rest.
	ch := c.group.DoChan(targetID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, target)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.SchemaSnapshot), nil
	}
}

func (c *cachedCatalog) fetch(ctx context.Context, target models.TargetDescriptor) (*models.SchemaSnapshot, error) {
	start := c.now()

	dialect, ok := datasource.GetDialect(target.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported datasource type %s", apperrors.ErrSchemaUnavailable, target.Kind)
	}

	conn, err := c.adapters.Open(ctx, target)
	if err != nil {
		return nil, c.unavailable(target, err)
	}
	defer conn.Close()

	tables, err := conn.ExtractSchema(ctx)
	if err != nil {
		return nil, c.unavailable(target, err)
	}

	snap := &models.SchemaSnapshot{
		TargetDB:  target.ID,
		Dialect:   dialect.Name,
		Tables:    tables,
		FetchedAt: c.now(),
	}

	c.mu.Lock()
	c.snapshots[target.ID] = snap
	c.mu.Unlock()

	c.logger.Info("schema snapshot refreshed",
		zap.String("target", target.ID),
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", c.now().Sub(start)),
	)
	return snap, nil
}

func (c *cachedCatalog) unavailable(target models.TargetDescriptor, err error) error {
	c.logger.Error("failed to fetch schema",
		zap.String("target", target.ID),
		zap.String("error", logging.SanitizeError(err)),
	)
	if errors.Is(err, apperrors.ErrSchemaUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s", apperrors.ErrSchemaUnavailable, target.ID)
}

func (c *cachedCatalog) Invalidate(targetID string) {
	c.mu.Lock()
	delete(c.snapshots, targetID)
	c.mu.Unlock()
}
