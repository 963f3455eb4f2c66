// Package inmemdb implements the repositories in memory, with the same atomicity guarantees as the
// Postgres ones. It backs the service and HTTP tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/planner/core/notification"
	"github.com/trezcool/planner/core/planning"
	"github.com/trezcool/planner/core/user"
)

type (
	row struct {
		seq int // insertion order, breaks timestamp ties
	}

	attachmentRow struct {
		row
		planning.Attachment
	}

	commentRow struct {
		row
		planning.Comment
	}

	notificationRow struct {
		row
		notification.Notification
	}

	// DB holds every table behind a single lock so multi-table operations (eg. cascading deletes)
	// are atomic.
	DB struct {
		mu            sync.RWMutex
		seq           int
		users         map[string]*user.User
		plans         map[string]*planning.Plan
		planKeys      map[planning.Key]string // {key: plan ID}
		attachments   map[string]*attachmentRow
		comments      map[string]*commentRow
		notifications map[string]*notificationRow
	}
)

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		plans:         make(map[string]*planning.Plan),
		planKeys:      make(map[planning.Key]string),
		attachments:   make(map[string]*attachmentRow),
		comments:      make(map[string]*commentRow),
		notifications: make(map[string]*notificationRow),
	}
}

// next must be called with the write lock held.
func (db *DB) next() row {
	db.seq++
	return row{seq: db.seq}
}
