// Package migrationlock serializes schema migration and catalog seeding
// across crm-server replicas that share one database.
package migrationlock

import (
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Locker runs fn while holding a database-wide lock.
type Locker interface {
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// Option configures a Locker.
type Option func(*options)

type options struct {
	holder     string
	attempts   int
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// WithHolder names the lock owner in the lock table. Defaults to the hostname.
func WithHolder(holder string) Option { return func(o *options) { o.holder = holder } }

// WithRetry sets how often the table lock is tried before giving up.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.attempts = attempts
		o.interval = interval
	}
}

// WithStaleAfter sets the age after which a table lock left by a crashed
// holder is broken.
func WithStaleAfter(d time.Duration) Option { return func(o *options) { o.staleAfter = d } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// New returns the Locker for db's dialect. PostgreSQL uses a session
// advisory lock keyed by name; every other dialect uses a lock table.
func New(db *gorm.DB, name string, opts ...Option) (Locker, error) {
	o := options{
		attempts:   30,
		interval:   time.Second,
		staleAfter: 5 * time.Minute,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.holder == "" {
		o.holder, _ = os.Hostname()
		if o.holder == "" {
			o.holder = "unknown"
		}
	}
	if o.attempts < 1 {
		o.attempts = 1
	}

	if db == nil {
		return noopLock{}, nil
	}
	if db.Dialector.Name() == "postgres" {
		return &advisoryLock{db: db, key: int64(crc32.ChecksumIEEE([]byte(name))), opts: o}, nil
	}
	if err := db.AutoMigrate(&lockRecord{}); err != nil {
		return nil, fmt.Errorf("create lock table: %w", err)
	}
	return &tableLock{db: db, name: name, opts: o}, nil
}

type noopLock struct{}

func (noopLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// advisoryLock pins one pooled connection so lock and unlock share a session.
type advisoryLock struct {
	db   *gorm.DB
	key  int64
	opts options
}

func (l *advisoryLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.key).Error; err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
		l.opts.logger.Debug("migration lock acquired", zap.Int64("key", l.key))
		defer func() {
			if err := conn.Exec("SELECT pg_advisory_unlock(?)", l.key).Error; err != nil {
				l.opts.logger.Warn("release advisory lock", zap.Int64("key", l.key), zap.Error(err))
			}
		}()
		return fn(ctx)
	})
}

type lockRecord struct {
	Name     string    `gorm:"primaryKey;column:name;type:varchar(128)"`
	LockedBy string    `gorm:"column:locked_by;type:varchar(255)"`
	LockedAt time.Time `gorm:"column:locked_at"`
}

func (lockRecord) TableName() string { return "crm_migration_locks" }

// tableLock holds the lock while its row exists. The primary key makes the
// insert fail for everyone but one holder.
type tableLock struct {
	db   *gorm.DB
	name string
	opts options
}

func (l *tableLock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		err := l.db.Where("name = ? AND locked_by = ?", l.name, l.opts.holder).Delete(&lockRecord{}).Error
		if err != nil {
			l.opts.logger.Warn("release migration lock", zap.String("lock", l.name), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (l *tableLock) acquire(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= l.opts.attempts; attempt++ {
		now := l.opts.now()
		broken := l.db.WithContext(ctx).
			Where("name = ? AND locked_at < ?", l.name, now.Add(-l.opts.staleAfter)).
			Delete(&lockRecord{})
		if broken.Error == nil && broken.RowsAffected > 0 {
			l.opts.logger.Warn("broke stale migration lock", zap.String("lock", l.name))
		}

		lastErr = l.db.WithContext(ctx).Create(&lockRecord{Name: l.name, LockedBy: l.opts.holder, LockedAt: now}).Error
		if lastErr == nil {
			l.opts.logger.Debug("migration lock acquired", zap.String("lock", l.name), zap.Int("attempt", attempt))
			return nil
		}
		if attempt == l.opts.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.opts.interval):
		}
	}
	return fmt.Errorf("acquire migration lock %q after %d attempts: %w", l.name, l.opts.attempts, lastErr)
}
