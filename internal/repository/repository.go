package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/domain"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
	"github.com/oggyb/muzz-matching/internal/metrics"
)

// DefaultTxAttempts bounds how often a contended transaction is tried.
const DefaultTxAttempts = 3

// Repositories bundles every repository over one *gorm.DB. Inside InTx and
// InPair the callback gets a copy bound to the transaction; it must not
// touch the outer copy.
type Repositories struct {
	db       *gorm.DB
	attempts int

	Profiles      *ProfileRepository
	Interests     *InterestRepository
	Matches       *MatchRepository
	Conversations *ConversationRepository
	Safety        *SafetyRepository
	Passes        *PassRepository
}

// New binds all repositories to database.
func New(database *gorm.DB) *Repositories {
	return bind(database, DefaultTxAttempts)
}

func bind(database *gorm.DB, attempts int) *Repositories {
	return &Repositories{
		db:            database,
		attempts:      attempts,
		Profiles:      NewProfileRepository(database),
		Interests:     NewInterestRepository(database),
		Matches:       NewMatchRepository(database),
		Conversations: NewConversationRepository(database),
		Safety:        NewSafetyRepository(database),
		Passes:        NewPassRepository(database),
	}
}

// WithTxAttempts returns a copy retrying contended transactions up to n
// times in total.
func (r *Repositories) WithTxAttempts(n int) *Repositories {
	if n < 1 {
		n = 1
	}
	return bind(r.db, n)
}

// DB exposes the underlying handle for health checks and tests.
func (r *Repositories) DB() *gorm.DB { return r.db }

// InTx runs fn in one transaction. Deadlocks, lock timeouts and busy
// errors roll back and retry; once the attempts are used up the caller
// gets ErrContention. Other errors are returned as they are.
func (r *Repositories) InTx(ctx context.Context, fn func(tx *Repositories) error) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(bind(tx, 1))
		})
		if err == nil {
			if attempt > 1 {
				metrics.TxRetries.WithLabelValues("recovered").Inc()
			}
			return nil
		}
		if !IsContention(err) {
			return err
		}
		if attempt == r.attempts {
			break
		}
		metrics.TxRetries.WithLabelValues("retry").Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * 5 * time.Millisecond):
		}
	}
	metrics.TxRetries.WithLabelValues("exhausted").Inc()
	return svcErr.Wrap(svcErr.KindContention, svcErr.ErrContention.Message, err)
}

// InPair runs fn in a transaction that first takes the row lock of pair.
// Every writer of the pair goes through here, so writers of one pair run
// one at a time while different pairs never wait on each other.
func (r *Repositories) InPair(ctx context.Context, pair domain.Pair, fn func(tx *Repositories) error) error {
	return r.InTx(ctx, func(tx *Repositories) error {
		if err := tx.lockPair(pair); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (r *Repositories) lockPair(pair domain.Pair) error {
	lock := db.PairLock{UserLow: pair.Low, UserHigh: pair.High}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock).Error; err != nil {
		return err
	}
	// sqlite ignores FOR UPDATE; its single writer already serializes us
	return r.db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("user_low = ? AND user_high = ?", pair.Low, pair.High).
		Take(&lock).Error
}

// IsContention reports whether err is a transient lock conflict worth a
// retry: MySQL deadlock (1213), lock wait timeout (1205) or duplicate key
// from a racing insert (1062), and SQLite busy/locked.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213, 1205, 1062:
			return true
		}
		return false
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		}
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
