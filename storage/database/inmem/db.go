package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/academic"
	"github.com/trezcool/academia/core/fee"
	"github.com/trezcool/academia/core/promotion"
	"github.com/trezcool/academia/core/user"
)

type tables struct {
	schools     map[int64]academic.School
	users       map[int64]user.User
	sessions    map[int64]academic.Session
	classes     map[int64]academic.Class
	students    map[studentKey]academic.Student
	enrollments map[int64]academic.Enrollment
	structures  map[int64]fee.Structure
	fees        map[int64]fee.Fee
	promotions  map[int64]promotion.Promotion
}

type studentKey struct {
	schoolID int64
	pan      string
}

// DB is an in-memory store for tests & demos. It implements core.TxRunner.
type DB struct {
	mu   sync.RWMutex
	txMu sync.Mutex // serializes transactions
	seq  map[string]int64
	t    tables
}

var _ core.TxRunner = (*DB)(nil)

func New() *DB {
	return &DB{
		seq: make(map[string]int64),
		t:   newTables(),
	}
}

func newTables() tables {
	return tables{
		schools:     make(map[int64]academic.School),
		users:       make(map[int64]user.User),
		sessions:    make(map[int64]academic.Session),
		classes:     make(map[int64]academic.Class),
		students:    make(map[studentKey]academic.Student),
		enrollments: make(map[int64]academic.Enrollment),
		structures:  make(map[int64]fee.Structure),
		fees:        make(map[int64]fee.Fee),
		promotions:  make(map[int64]promotion.Promotion),
	}
}

// nextID returns id when set (bumping the table sequence past it) or the next sequence value.
// Must be called with mu held.
func (db *DB) nextID(table string, id int64) int64 {
	if id > 0 {
		if id > db.seq[table] {
			db.seq[table] = id
		}
		return id
	}
	db.seq[table]++
	return db.seq[table]
}

// RunInTx runs fn and restores every table when it returns an error or panics.
// Writes made outside of transactions while fn runs are lost on rollback.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.t.clone()
	seq := cloneSeq(db.seq)
	db.mu.RUnlock()

	rollback := func() {
		db.mu.Lock()
		db.t = snapshot
		db.seq = seq
		db.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		rollback()
	}
	return err
}

// Reset drops all the data.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
	db.seq = make(map[string]int64)
}

func cloneSeq(seq map[string]int64) map[string]int64 {
	c := make(map[string]int64, len(seq))
	for k, v := range seq {
		c[k] = v
	}
	return c
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.schools {
		c.schools[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.sessions {
		c.sessions[k] = v
	}
	for k, v := range t.classes {
		c.classes[k] = v
	}
	for k, v := range t.students {
		c.students[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.structures {
		c.structures[k] = v
	}
	for k, v := range t.fees {
		c.fees[k] = v
	}
	for k, v := range t.promotions {
		c.promotions[k] = v
	}
	return c
}
