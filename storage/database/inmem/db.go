package inmemdb

import (
	"context"
	"sync"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/review"
	"github.com/kidoparadise/kido/core/user"
)

type (
	// DB is a process-local database, used by tests and the demo mode of the API.
	DB struct {
		mutex sync.RWMutex
		txMu  sync.Mutex
		data  tables
	}

	tables struct {
		users         map[string]user.User
		categories    map[string]catalog.Category
		professionals map[string]catalog.Professional
		videos        map[string]catalog.Video
		orders        map[string]order.Order
		payments      map[string]order.Payment      // by order ID
		library       map[string]order.LibraryEntry // by pairKey(userID, videoID)
		reservations  map[string]booking.Reservation
		slots         map[string]booking.Slot // by slotKey(professionalID, startTime)
		reviews       map[string]review.Review
	}
)

func Open() *DB {
	return &DB{data: newTables()}
}

func newTables() tables {
	return tables{
		users:         make(map[string]user.User),
		categories:    make(map[string]catalog.Category),
		professionals: make(map[string]catalog.Professional),
		videos:        make(map[string]catalog.Video),
		orders:        make(map[string]order.Order),
		payments:      make(map[string]order.Payment),
		library:       make(map[string]order.LibraryEntry),
		reservations:  make(map[string]booking.Reservation),
		slots:         make(map[string]booking.Slot),
		reviews:       make(map[string]review.Review),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t tables) clone() tables {
	return tables{
		users:         copyMap(t.users),
		categories:    copyMap(t.categories),
		professionals: copyMap(t.professionals),
		videos:        copyMap(t.videos),
		orders:        copyMap(t.orders),
		payments:      copyMap(t.payments),
		library:       copyMap(t.library),
		reservations:  copyMap(t.reservations),
		slots:         copyMap(t.slots),
		reviews:       copyMap(t.reviews),
	}
}

func pairKey(a, b string) string {
	return a + "|" + b
}

// Flush empties every table.
func (db *DB) Flush() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.data = newTables()
}

// txExecutor tags repository calls made inside WithinTx. It is never used to run queries.
type txExecutor struct {
	core.DBExecutor
}

// lockWrite takes the write lock and returns its release func.
// Writes made outside of a transaction wait for the running one, so a rollback never erases them.
// Reads do not wait: they may see the uncommitted writes of a running transaction.
func (db *DB) lockWrite(exec []core.DBExecutor) (unlock func()) {
	inTx := false
	if len(exec) > 0 {
		_, inTx = exec[0].(txExecutor)
	}
	if !inTx {
		db.txMu.Lock()
	}
	db.mutex.Lock()
	return func() {
		db.mutex.Unlock()
		if !inTx {
			db.txMu.Unlock()
		}
	}
}

type transactor struct {
	db *DB
}

var _ core.Transactor = (*transactor)(nil) // interface compliance check

func NewTransactor(db *DB) *transactor {
	return &transactor{db: db}
}

// WithinTx serializes transactions and restores a snapshot of the tables when fn fails.
// Repositories must be called with exec inside fn: a write without it waits for the transaction to end.
func (t *transactor) WithinTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.mutex.RLock()
	snapshot := t.db.data.clone()
	t.db.mutex.RUnlock()

	if err := fn(txExecutor{}); err != nil {
		t.db.mutex.Lock()
		t.db.data = snapshot
		t.db.mutex.Unlock()
		return err
	}
	return nil
}
