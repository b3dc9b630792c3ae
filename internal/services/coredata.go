package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"cashtimachann/internal/cache"
	"cashtimachann/internal/core"
	"cashtimachann/internal/gateway"
	applog "cashtimachann/internal/log"
)

// ErrProfileFetch wraps non-auth profile failures.
var ErrProfileFetch = errors.New("Profile fetch failed")

// CoreDataSource is the slice of the gateway the aggregator reads.
type CoreDataSource interface {
	gateway.Auth
	gateway.Transactions
}

// Snapshot is the core user data of one session: profile, wallet,
// recent transactions and stats. Transactions and stats are optional; their
// failures are reported without failing the snapshot.
type Snapshot struct {
	Data            core.UserData
	Transactions    []core.Transaction
	Stats           *core.TransactionStats
	TransactionsErr error
	StatsErr        error
	LoadedAt        time.Time
	RoleMismatch    bool
}

// Partial reports whether part of the snapshot failed to load.
func (s Snapshot) Partial() bool {
	return s.TransactionsErr != nil || s.StatsErr != nil
}

type CoreDataConfig struct {
	TransactionsLimit int
	CacheTTL          time.Duration
	CacheSize         int
}

func DefaultCoreDataConfig() CoreDataConfig {
	return CoreDataConfig{
		TransactionsLimit: core.DefaultPageSize,
		CacheTTL:          15 * time.Second,
		CacheSize:         1000,
	}
}

// CoreData aggregates the profile, transactions and stats calls behind a
// single in-flight guard: concurrent loads for one token share one round
// trip.
type CoreData struct {
	src    CoreDataSource
	cfg    CoreDataConfig
	group  singleflight.Group
	cache  *cache.LRUCache[Snapshot]
	now    func() time.Time
	logger *applog.Logger
}

func NewCoreData(src CoreDataSource, cfg CoreDataConfig, logger *applog.Logger) *CoreData {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if cfg.TransactionsLimit < 1 {
		cfg.TransactionsLimit = core.DefaultPageSize
	}
	if cfg.CacheSize < 1 {
		cfg.CacheSize = 1000
	}
	return &CoreData{
		src:    src,
		cfg:    cfg,
		cache:  cache.NewLRUCache[Snapshot](cfg.CacheSize, cfg.CacheTTL),
		now:    time.Now,
		logger: logger.WithComponent(applog.ComponentCoreData),
	}
}

// Cache exposes the snapshot cache for cleanup registration.
func (c *CoreData) Cache() *cache.LRUCache[Snapshot] {
	return c.cache
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Load returns the snapshot for token. expectedRole may be empty; a
// mismatch is flagged and logged, the caller decides what to do with it.
func (c *CoreData) Load(ctx context.Context, token string, expectedRole core.Role) (Snapshot, error) {
	if token == "" {
		return Snapshot{}, gateway.ErrNoToken
	}
	key := tokenKey(token)

	snap, ok := c.cache.Get(key)
	if !ok {
		v, err, shared := c.group.Do(key, func() (any, error) {
			return c.fetch(context.WithoutCancel(ctx), token)
		})
		if err != nil {
			return Snapshot{}, err
		}
		snap = v.(Snapshot)
		if shared {
			c.logger.DebugContext(ctx, "Core data load shared with in-flight call")
		}
		if c.cfg.CacheTTL > 0 {
			c.cache.Set(key, snap)
		}
	}

	snap.RoleMismatch = expectedRole != "" && snap.Data.User.UserType != expectedRole
	if snap.RoleMismatch {
		c.logger.WarnContext(ctx, "Role mismatch",
			"expected", expectedRole.String(),
			"got", snap.Data.User.UserType.String(),
			applog.FieldUserID, snap.Data.User.ID.String())
	}
	return snap, nil
}

func (c *CoreData) fetch(ctx context.Context, token string) (Snapshot, error) {
	start := c.now()
	data, err := c.src.Profile(ctx, token)
	if err != nil {
		if gateway.IsAuthError(err) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("%w: %w", ErrProfileFetch, err)
	}

	snap := Snapshot{Data: data}
	var g errgroup.Group
	g.Go(func() error {
		txs, err := c.src.ListTransactions(ctx, token, c.cfg.TransactionsLimit)
		if err != nil {
			snap.TransactionsErr = err
			return nil
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		stats, err := c.src.TransactionStats(ctx, token)
		if err != nil {
			snap.StatsErr = err
			return nil
		}
		snap.Stats = &stats
		return nil
	})
	_ = g.Wait()

	snap.LoadedAt = c.now()
	if snap.Partial() {
		c.logger.WarnContext(ctx, "Core data loaded partially",
			applog.FieldUserID, data.User.ID.String(),
			"transactions_error", errString(snap.TransactionsErr),
			"stats_error", errString(snap.StatsErr))
	}
	c.logger.DebugContext(ctx, "Core data loaded",
		applog.FieldUserID, data.User.ID.String(),
		applog.FieldDuration, snap.LoadedAt.Sub(start).Milliseconds())
	return snap, nil
}

// Refresh drops the cached snapshot and loads a fresh one.
func (c *CoreData) Refresh(ctx context.Context, token string, expectedRole core.Role) (Snapshot, error) {
	c.Invalidate(token)
	return c.Load(ctx, token, expectedRole)
}

// Invalidate drops the cached snapshot of token, e.g. after a payment.
func (c *CoreData) Invalidate(token string) {
	c.cache.Delete(tokenKey(token))
}

// RequestVerification asks the backend to review the account and reports
// whether it accepted.
func (c *CoreData) RequestVerification(ctx context.Context, token string) bool {
	if err := c.src.RequestVerification(ctx, token); err != nil {
		c.logger.WarnContext(ctx, "Verification request failed", applog.FieldError, err.Error())
		return false
	}
	c.Invalidate(token)
	return true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
