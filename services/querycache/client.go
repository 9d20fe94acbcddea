// Package querycache caches backend reads per (query, principal) with a TTL.
// Failed calls are never cached. Writes drop the entries they affect.
//
// Admin and subscription checks are not cached: the admin CLI writes them
// straight to the database, out of reach of this cache's invalidation.
package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/shule/core/backend"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shule_query_cache_hits_total",
		Help: "Backend queries answered from the cache.",
	}, []string{"query"})
	cacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shule_query_cache_misses_total",
		Help: "Backend queries sent to the backend.",
	}, []string{"query"})
)

const (
	qProfile     = "getCallerUserProfile"
	qStudent     = "getMyStudentProfile"
	qTeacher     = "getMyTeacherProfile"
	qConfig      = "getClassSubscriptionConfig"
	qLessons     = "getLessons"
	qClasses     = "getClasses"
	qAllProgress = "getAllProgressForStudent"
)

type key struct {
	query string
	arg   string // principal, class id, ...
}

type client struct {
	next  backend.Client
	cache *expirable.LRU[key, interface{}]

	mu sync.Mutex
	// gen is bumped by every invalidation. A miss only stores its result
	// when no invalidation happened while it was fetching.
	gen uint64
}

var _ backend.Client = (*client)(nil)

// Wrap decorates next with a cache of at most size entries living ttl each.
func Wrap(next backend.Client, size int, ttl time.Duration) backend.Client {
	return &client{
		next:  next,
		cache: expirable.NewLRU[key, interface{}](size, nil, ttl),
	}
}

func cached[T any](c *client, k key, fetch func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(k); ok {
		if t, ok := v.(T); ok {
			cacheHitsTotal.WithLabelValues(k.query).Inc()
			return t, nil
		}
	}
	cacheMissesTotal.WithLabelValues(k.query).Inc()
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	v, err := fetch()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.cache.Add(k, v)
	}
	c.mu.Unlock()
	return v, nil
}

func (c *client) remove(keys ...key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, k := range keys {
		c.cache.Remove(k)
	}
}

func (c *client) GetCallerUserProfile(ctx context.Context, principal string) (*backend.UserProfile, error) {
	return cached(c, key{qProfile, principal}, func() (*backend.UserProfile, error) {
		return c.next.GetCallerUserProfile(ctx, principal)
	})
}

func (c *client) SaveCallerUserProfile(ctx context.Context, principal string, profile backend.UserProfile) error {
	defer c.forget(principal)
	return c.next.SaveCallerUserProfile(ctx, principal, profile)
}

func (c *client) IsCallerAdmin(ctx context.Context, principal string) (bool, error) {
	return c.next.IsCallerAdmin(ctx, principal)
}

func (c *client) GetMyStudentProfile(ctx context.Context, principal string) (*backend.Student, error) {
	return cached(c, key{qStudent, principal}, func() (*backend.Student, error) {
		return c.next.GetMyStudentProfile(ctx, principal)
	})
}

func (c *client) GetMyTeacherProfile(ctx context.Context, principal string) (*backend.Teacher, error) {
	return cached(c, key{qTeacher, principal}, func() (*backend.Teacher, error) {
		return c.next.GetMyTeacherProfile(ctx, principal)
	})
}

func (c *client) AssignAdmin(ctx context.Context, principal string) error {
	defer c.forget(principal)
	return c.next.AssignAdmin(ctx, principal)
}

func (c *client) GetClasses(ctx context.Context) ([]backend.Class, error) {
	return cached(c, key{qClasses, ""}, func() ([]backend.Class, error) {
		return c.next.GetClasses(ctx)
	})
}

func (c *client) GetClassSubscriptionConfig(ctx context.Context, classID string) (*backend.SubscriptionConfig, error) {
	return cached(c, key{qConfig, classID}, func() (*backend.SubscriptionConfig, error) {
		return c.next.GetClassSubscriptionConfig(ctx, classID)
	})
}

func (c *client) SetClassSubscriptionConfig(ctx context.Context, classID string, cfg backend.SubscriptionConfig) error {
	defer c.remove(key{qConfig, classID})
	return c.next.SetClassSubscriptionConfig(ctx, classID, cfg)
}

func (c *client) HasClassSubscription(ctx context.Context, studentID, classID string) (bool, error) {
	return c.next.HasClassSubscription(ctx, studentID, classID)
}

func (c *client) ActivateClassSubscription(ctx context.Context, studentID, classID string) error {
	return c.next.ActivateClassSubscription(ctx, studentID, classID)
}

func (c *client) GetLessons(ctx context.Context, filter backend.LessonFilter) ([]backend.Lesson, error) {
	return cached(c, key{qLessons, filter.ClassID + "/" + filter.CourseID}, func() ([]backend.Lesson, error) {
		return c.next.GetLessons(ctx, filter)
	})
}

func (c *client) GetAllProgressForStudent(ctx context.Context, principal string) ([]backend.LessonProgress, error) {
	return cached(c, key{qAllProgress, principal}, func() ([]backend.LessonProgress, error) {
		return c.next.GetAllProgressForStudent(ctx, principal)
	})
}

func (c *client) UpdateLessonProgress(ctx context.Context, principal, lessonID string, completed bool, completionTimestamp *time.Time) error {
	defer c.remove(key{qAllProgress, principal})
	return c.next.UpdateLessonProgress(ctx, principal, lessonID, completed, completionTimestamp)
}

// forget drops every caller-scoped entry of principal.
func (c *client) forget(principal string) {
	c.remove(key{qProfile, principal}, key{qStudent, principal}, key{qTeacher, principal})
}
