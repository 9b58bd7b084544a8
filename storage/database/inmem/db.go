// Package inmemdb is a process-local store for development and tests.
// It implements every repository of the application plus core.Transactor.
package inmemdb

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
)

var errNoSQL = errors.New("the in-memory store does not run SQL")

type (
	engagementKey struct {
		eventID string
		userID  string
	}

	tables struct {
		users       map[string]user.User
		societies   map[string]society.Society
		events      map[string]event.Event
		modules     map[string]event.Module
		speakers    map[string]event.Speaker
		engagements map[engagementKey]event.EngagementRecord
	}

	// DB holds every table behind a single lock. Stored values are never mutated in place:
	// writes replace them with fresh copies, so a shallow copy of the maps is a consistent snapshot.
	DB struct {
		mu sync.Mutex
		t  tables
	}

	// tx is the executor handed to functions run by DB.WithinTx; the store lock is already held.
	tx struct {
		db *DB
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{t: tables{
		users:       make(map[string]user.User),
		societies:   make(map[string]society.Society),
		events:      make(map[string]event.Event),
		modules:     make(map[string]event.Module),
		speakers:    make(map[string]event.Speaker),
		engagements: make(map[engagementKey]event.EngagementRecord),
	}}
}

func (t tables) snapshot() tables {
	s := tables{
		users:       make(map[string]user.User, len(t.users)),
		societies:   make(map[string]society.Society, len(t.societies)),
		events:      make(map[string]event.Event, len(t.events)),
		modules:     make(map[string]event.Module, len(t.modules)),
		speakers:    make(map[string]event.Speaker, len(t.speakers)),
		engagements: make(map[engagementKey]event.EngagementRecord, len(t.engagements)),
	}
	for k, v := range t.users {
		s.users[k] = v
	}
	for k, v := range t.societies {
		s.societies[k] = v
	}
	for k, v := range t.events {
		s.events[k] = v
	}
	for k, v := range t.modules {
		s.modules[k] = v
	}
	for k, v := range t.speakers {
		s.speakers[k] = v
	}
	for k, v := range t.engagements {
		s.engagements[k] = v
	}
	return s
}

// WithinTx runs fn while holding the store lock. Every write made by fn is rolled back if it returns an error.
// Repository calls inside fn must pass exec, or they will deadlock.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, exec core.DBExecutor) error) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	saved := db.t.snapshot()
	defer func() {
		if r := recover(); r != nil {
			db.t = saved
			panic(r)
		}
		if err != nil {
			db.t = saved
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &tx{db: db})
}

// acquire locks the store unless exec is a transaction of db, which already holds the lock.
func (db *DB) acquire(exec []core.DBExecutor) func() {
	if len(exec) > 0 {
		if t, ok := exec[0].(*tx); ok && t.db == db {
			return func() {}
		}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = Open().t
}

func (*tx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}

func (*tx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (*tx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	return nil
}

// orderBy sorts n items by the given orderings; cmp compares items i and j on one field.
func orderBy(n int, swap func(i, j int), ordering []core.DBOrdering, cmp func(i, j int, field string) int) {
	if len(ordering) == 0 {
		return
	}
	sort.Stable(sorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(i, j, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	}})
}

type sorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }

func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
