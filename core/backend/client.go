// Package backend describes the system of record the portals talk to.
package backend

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/trezcool/shule/core"
)

// Client is the set of system-of-record operations used by the portals.
// Caller-scoped operations take the caller principal explicitly.
// A missing record is reported as a nil pointer, not as an error.
type Client interface {
	GetCallerUserProfile(ctx context.Context, principal string) (*UserProfile, error)
	SaveCallerUserProfile(ctx context.Context, principal string, profile UserProfile) error
	IsCallerAdmin(ctx context.Context, principal string) (bool, error)
	GetMyStudentProfile(ctx context.Context, principal string) (*Student, error)
	GetMyTeacherProfile(ctx context.Context, principal string) (*Teacher, error)
	AssignAdmin(ctx context.Context, principal string) error

	GetClasses(ctx context.Context) ([]Class, error)
	GetClassSubscriptionConfig(ctx context.Context, classID string) (*SubscriptionConfig, error)
	SetClassSubscriptionConfig(ctx context.Context, classID string, cfg SubscriptionConfig) error
	HasClassSubscription(ctx context.Context, studentID, classID string) (bool, error)
	ActivateClassSubscription(ctx context.Context, studentID, classID string) error

	// GetLessons returns lessons in creation order.
	GetLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error)
	GetAllProgressForStudent(ctx context.Context, principal string) ([]LessonProgress, error)
	UpdateLessonProgress(ctx context.Context, principal, lessonID string, completed bool, completionTimestamp *time.Time) error
}

// Provider hands out the Client once it is available.
type Provider interface {
	// Client returns core.ErrNotReady while the client is being constructed.
	Client() (Client, error)
}

// Lazy is a Provider whose Client is set once the connection is established.
type Lazy struct {
	client atomic.Value // holds Client
}

var _ Provider = (*Lazy)(nil)

func NewLazy() *Lazy {
	return &Lazy{}
}

// Ready returns a Provider that is already connected to c.
func Ready(c Client) *Lazy {
	l := NewLazy()
	l.Set(c)
	return l
}

func (l *Lazy) Set(c Client) {
	l.client.Store(holder{c})
}

func (l *Lazy) Client() (Client, error) {
	h, ok := l.client.Load().(holder)
	if !ok || h.Client == nil {
		return nil, core.ErrNotReady
	}
	return h.Client, nil
}

// atomic.Value requires a consistent concrete type
type holder struct {
	Client
}
