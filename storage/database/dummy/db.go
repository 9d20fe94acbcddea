package dummydb

import (
	"sync"
	"time"

	"github.com/trezcool/shule/core/backend"
)

type (
	// DB is an in-memory system of record used for tests and local development.
	DB struct {
		sync.RWMutex

		profiles      map[string]backend.UserProfile // {principal: profile}
		admins        map[string]bool
		students      map[string]*backend.Student // {id: student}
		teachers      map[string]*backend.Teacher
		classes       map[string]*backend.Class
		lessons       []*backend.Lesson // creation order
		progress      map[string]map[string]backend.LessonProgress // {principal: {lessonID: progress}}
		configs       map[string]backend.SubscriptionConfig        // {classID: config}
		subscriptions map[subscriptionKey]time.Time

		faults map[string]error
		calls  map[string]int
	}

	subscriptionKey struct {
		studentID string
		classID   string
	}
)

func Open() (*DB, error) {
	db := &DB{
		profiles:      make(map[string]backend.UserProfile),
		admins:        make(map[string]bool),
		students:      make(map[string]*backend.Student),
		teachers:      make(map[string]*backend.Teacher),
		classes:       make(map[string]*backend.Class),
		progress:      make(map[string]map[string]backend.LessonProgress),
		configs:       make(map[string]backend.SubscriptionConfig),
		subscriptions: make(map[subscriptionKey]time.Time),
		faults:        make(map[string]error),
		calls:         make(map[string]int),
	}
	return db, nil
}

// FailWith makes every later call to op return err. A nil err clears the fault.
func (db *DB) FailWith(op string, err error) {
	db.Lock()
	defer db.Unlock()
	if err == nil {
		delete(db.faults, op)
		return
	}
	db.faults[op] = err
}

// Calls returns how many times op was invoked.
func (db *DB) Calls(op string) int {
	db.RLock()
	defer db.RUnlock()
	return db.calls[op]
}

// called must be invoked with the lock held.
func (db *DB) called(op string) error {
	db.calls[op]++
	return db.faults[op]
}
