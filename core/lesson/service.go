package lesson

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/subscription"
)

var (
	nowFunc = time.Now

	ErrLessonLocked = errors.New("lesson is locked, a subscription is required")
)

// StudentLesson is a lesson as listed to a student.
type StudentLesson struct {
	subscription.LessonAccess
	Completed           bool       `json:"completed"`
	CompletionTimestamp *time.Time `json:"completion_timestamp"`
}

type Service struct {
	provider backend.Provider
	subSvc   *subscription.Service
}

func NewService(provider backend.Provider, subSvc *subscription.Service) *Service {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(provider, "provider"),
		vala.IsNotNil(subSvc, "subSvc"),
	).Check(); err != nil {
		panic(err)
	}
	return &Service{provider: provider, subSvc: subSvc}
}

// StudentLessons lists the lessons of the student's class in backend order, with lock and completion status.
func (svc *Service) StudentLessons(ctx context.Context, principal string, student backend.Student) ([]StudentLesson, error) {
	access, err := svc.subSvc.LessonsFor(ctx, student)
	if err != nil {
		return nil, err
	}
	client, err := svc.provider.Client()
	if err != nil {
		return nil, err
	}
	progress, err := client.GetAllProgressForStudent(ctx, principal)
	if err != nil {
		return nil, core.NewBackendError("getAllProgressForStudent", err)
	}
	byLesson := make(map[string]backend.LessonProgress, len(progress))
	for _, p := range progress {
		byLesson[p.LessonID] = p
	}

	lessons := make([]StudentLesson, 0, len(access))
	for _, a := range access {
		sl := StudentLesson{LessonAccess: a}
		if p, ok := byLesson[a.ID]; ok {
			sl.Completed = p.Completed
			sl.CompletionTimestamp = p.CompletionTimestamp
		}
		lessons = append(lessons, sl)
	}
	return lessons, nil
}

// SetProgress marks a lesson complete (stamped now) or incomplete (stamp cleared).
// Unknown and locked lessons are refused.
func (svc *Service) SetProgress(ctx context.Context, principal string, student backend.Student, lessonID string, completed bool) (backend.LessonProgress, error) {
	access, err := svc.subSvc.LessonsFor(ctx, student)
	if err != nil {
		return backend.LessonProgress{}, err
	}
	var found *subscription.LessonAccess
	for i := range access {
		if access[i].ID == lessonID {
			found = &access[i]
			break
		}
	}
	if found == nil {
		return backend.LessonProgress{}, core.NewNotFoundError("lesson", lessonID)
	}
	if found.IsLocked {
		return backend.LessonProgress{}, ErrLessonLocked
	}

	var ts *time.Time
	if completed {
		now := nowFunc().UTC()
		ts = &now
	}
	client, err := svc.provider.Client()
	if err != nil {
		return backend.LessonProgress{}, err
	}
	if err := client.UpdateLessonProgress(ctx, principal, lessonID, completed, ts); err != nil {
		return backend.LessonProgress{}, core.NewBackendError("updateLessonProgress", err)
	}
	return backend.LessonProgress{LessonID: lessonID, Completed: completed, CompletionTimestamp: ts}, nil
}
