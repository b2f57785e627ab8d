// Package store is the only writer of the weather tables. It also serves
// the read path used by the HTTP API and the chatbot tools.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/db"
	"github.com/AbdulWasayUl/go-weather-etl/internal/db/migrations"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/ncruces/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

type Store struct {
	db          *db.DB
	log         *logger.Logger
	now         func() time.Time
	lookupTries uint64
	lookupDelay time.Duration
}

func New(d *db.DB) *Store {
	return &Store{
		db:          d,
		log:         logger.Component("store"),
		now:         time.Now,
		lookupTries: 3,
		lookupDelay: 200 * time.Millisecond,
	}
}

// WithClock replaces the clock used for computed_at stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) DB() *db.DB { return s.db }

// lockClause makes the location lookup take a row lock on MySQL. SQLite
// write transactions already hold the database lock from BEGIN.
func (s *Store) lockClause() string {
	if s.db.Dialect == migrations.MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// retryLookup re-runs a read-before-write lookup while the database reports
// a lock conflict that leaves the transaction usable. A MySQL deadlock rolls
// the whole transaction back, so it is not retried here.
func (s *Store) retryLookup(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.lookupDelay), s.lookupTries-1), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsLockConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		s.log.Warn("Location lookup hit a lock conflict, retrying in %s: %v", wait, err)
	})
}

// IsLockConflict reports whether err is a transient lock error from either
// driver.
func IsLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout
	}
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

// IsDeadlock reports a MySQL deadlock. The caller may retry the whole unit.
func IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDeadlock
}

// utc normalizes a timestamp before it is bound. Both dialects store whole
// seconds in UTC, which keeps text comparisons on SQLite ordered.
func utc(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// sqlTime scans a timestamp column from either driver.
type sqlTime struct {
	time.Time
	Valid bool
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05"}

func (t *sqlTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x.UTC(), true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", v)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func floatArg(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func intArg(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func int64Arg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringArg(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
