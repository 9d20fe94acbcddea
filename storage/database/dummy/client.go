package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
)

// operation names, as passed to FailWith and Calls
const (
	OpGetCallerUserProfile       = "getCallerUserProfile"
	OpSaveCallerUserProfile      = "saveCallerUserProfile"
	OpIsCallerAdmin              = "isCallerAdmin"
	OpGetMyStudentProfile        = "getMyStudentProfile"
	OpGetMyTeacherProfile        = "getMyTeacherProfile"
	OpAssignAdmin                = "assignAdmin"
	OpGetClasses                 = "getClasses"
	OpGetClassSubscriptionConfig = "getClassSubscriptionConfig"
	OpSetClassSubscriptionConfig = "setClassSubscriptionConfig"
	OpHasClassSubscription       = "hasClassSubscription"
	OpActivateClassSubscription  = "activateClassSubscription"
	OpGetLessons                 = "getLessons"
	OpGetAllProgressForStudent   = "getAllProgressForStudent"
	OpUpdateLessonProgress       = "updateLessonProgress"
)

type client struct {
	db *DB
}

var _ backend.Client = (*client)(nil) // interface compliance check

func NewClient(db *DB) backend.Client {
	return &client{db: db}
}

func (c *client) GetCallerUserProfile(ctx context.Context, principal string) (*backend.UserProfile, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetCallerUserProfile); err != nil {
		return nil, err
	}
	if p, ok := c.db.profiles[principal]; ok {
		return &p, nil
	}
	return nil, nil
}

func (c *client) SaveCallerUserProfile(ctx context.Context, principal string, profile backend.UserProfile) error {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpSaveCallerUserProfile); err != nil {
		return err
	}
	c.db.profiles[principal] = profile
	return nil
}

func (c *client) IsCallerAdmin(ctx context.Context, principal string) (bool, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpIsCallerAdmin); err != nil {
		return false, err
	}
	return c.db.admins[principal], nil
}

func (c *client) GetMyStudentProfile(ctx context.Context, principal string) (*backend.Student, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetMyStudentProfile); err != nil {
		return nil, err
	}
	for _, s := range c.db.students {
		if s.Principal == principal {
			student := *s
			return &student, nil
		}
	}
	return nil, nil
}

func (c *client) GetMyTeacherProfile(ctx context.Context, principal string) (*backend.Teacher, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetMyTeacherProfile); err != nil {
		return nil, err
	}
	for _, t := range c.db.teachers {
		if t.Principal == principal {
			teacher := *t
			return &teacher, nil
		}
	}
	return nil, nil
}

func (c *client) AssignAdmin(ctx context.Context, principal string) error {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpAssignAdmin); err != nil {
		return err
	}
	c.db.admins[principal] = true
	return nil
}

func (c *client) GetClasses(ctx context.Context) ([]backend.Class, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetClasses); err != nil {
		return nil, err
	}
	classes := make([]backend.Class, 0, len(c.db.classes))
	for _, cls := range c.db.classes {
		classes = append(classes, *cls)
	}
	return classes, nil
}

func (c *client) GetClassSubscriptionConfig(ctx context.Context, classID string) (*backend.SubscriptionConfig, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetClassSubscriptionConfig); err != nil {
		return nil, err
	}
	if cfg, ok := c.db.configs[classID]; ok {
		return &cfg, nil
	}
	return nil, nil
}

func (c *client) SetClassSubscriptionConfig(ctx context.Context, classID string, cfg backend.SubscriptionConfig) error {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpSetClassSubscriptionConfig); err != nil {
		return err
	}
	if _, ok := c.db.classes[classID]; !ok {
		return core.NewNotFoundError("class", classID)
	}
	c.db.configs[classID] = cfg
	return nil
}

func (c *client) HasClassSubscription(ctx context.Context, studentID, classID string) (bool, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpHasClassSubscription); err != nil {
		return false, err
	}
	_, ok := c.db.subscriptions[subscriptionKey{studentID, classID}]
	return ok, nil
}

func (c *client) ActivateClassSubscription(ctx context.Context, studentID, classID string) error {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpActivateClassSubscription); err != nil {
		return err
	}
	if _, ok := c.db.students[studentID]; !ok {
		return core.NewNotFoundError("student", studentID)
	}
	key := subscriptionKey{studentID, classID}
	if _, ok := c.db.subscriptions[key]; !ok {
		c.db.subscriptions[key] = time.Now().UTC()
	}
	return nil
}

func (c *client) GetLessons(ctx context.Context, filter backend.LessonFilter) ([]backend.Lesson, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetLessons); err != nil {
		return nil, err
	}
	lessons := make([]backend.Lesson, 0)
	for _, l := range c.db.lessons {
		if filter.ClassID != "" && l.ClassID != filter.ClassID {
			continue
		}
		if filter.CourseID != "" && l.CourseID != filter.CourseID {
			continue
		}
		lessons = append(lessons, *l)
	}
	return lessons, nil
}

func (c *client) GetAllProgressForStudent(ctx context.Context, principal string) ([]backend.LessonProgress, error) {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpGetAllProgressForStudent); err != nil {
		return nil, err
	}
	progress := make([]backend.LessonProgress, 0, len(c.db.progress[principal]))
	for _, l := range c.db.lessons {
		if p, ok := c.db.progress[principal][l.ID]; ok {
			progress = append(progress, p)
		}
	}
	return progress, nil
}

func (c *client) UpdateLessonProgress(ctx context.Context, principal, lessonID string, completed bool, completionTimestamp *time.Time) error {
	c.db.Lock()
	defer c.db.Unlock()
	if err := c.db.called(OpUpdateLessonProgress); err != nil {
		return err
	}
	if _, ok := c.db.progress[principal]; !ok {
		c.db.progress[principal] = make(map[string]backend.LessonProgress)
	}
	c.db.progress[principal][lessonID] = backend.LessonProgress{
		LessonID:            lessonID,
		Completed:           completed,
		CompletionTimestamp: completionTimestamp,
	}
	return nil
}

// Seeding helpers. They bypass fault injection.

func (db *DB) CreateClass(cls backend.Class) backend.Class {
	db.Lock()
	defer db.Unlock()
	if cls.ID == "" {
		cls.ID = uuid.New().String()
	}
	db.classes[cls.ID] = &cls
	return cls
}

func (db *DB) CreateStudent(s backend.Student) backend.Student {
	db.Lock()
	defer db.Unlock()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	db.students[s.ID] = &s
	return s
}

func (db *DB) CreateTeacher(t backend.Teacher) backend.Teacher {
	db.Lock()
	defer db.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	db.teachers[t.ID] = &t
	return t
}

func (db *DB) CreateLesson(l backend.Lesson) backend.Lesson {
	db.Lock()
	defer db.Unlock()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	db.lessons = append(db.lessons, &l)
	return l
}

func (db *DB) SetProfile(principal string, p backend.UserProfile) {
	db.Lock()
	defer db.Unlock()
	db.profiles[principal] = p
}

func (db *DB) SetAdmin(principal string) {
	db.Lock()
	defer db.Unlock()
	db.admins[principal] = true
}

func (db *DB) SetConfig(classID string, cfg backend.SubscriptionConfig) {
	db.Lock()
	defer db.Unlock()
	db.configs[classID] = cfg
}
