package lesson

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/subscription"
	"github.com/trezcool/shule/storage/claims"
	"github.com/trezcool/shule/storage/database/dummy"
	"github.com/trezcool/shule/tests"
)

func setup(t *testing.T) (*Service, *testutil.School) {
	school := testutil.SeedSchool(t)
	provider := backend.Ready(school.Client)
	subSvc := subscription.NewService(provider, claimstore.NewMemoryStore(), nil, &testutil.Logger{}, subscription.Options{})
	return NewService(provider, subSvc), school
}

func TestNewService(t *testing.T) {
	school := testutil.SeedSchool(t)
	provider := backend.Ready(school.Client)
	subSvc := subscription.NewService(provider, claimstore.NewMemoryStore(), nil, &testutil.Logger{}, subscription.Options{})

	assert.Panics(t, func() { NewService(nil, subSvc) })
	assert.Panics(t, func() { NewService(provider, nil) })
	assert.NotPanics(t, func() { NewService(provider, subSvc) })
}

func TestService_StudentLessons(t *testing.T) {
	ctx := context.Background()
	svc, school := setup(t)

	done := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, school.Client.UpdateLessonProgress(ctx, testutil.StudentPrincipal, school.Lessons[1].ID, true, &done))

	lessons, err := svc.StudentLessons(ctx, testutil.StudentPrincipal, school.Student)
	require.NoError(t, err)
	require.Len(t, lessons, 5)

	for i, l := range lessons {
		assert.Equal(t, school.Lessons[i].ID, l.ID)
		assert.Equal(t, i >= subscription.FreeLessonCount, l.IsLocked)
		assert.Equal(t, i == 1, l.Completed)
	}
	assert.Equal(t, &done, lessons[1].CompletionTimestamp)
}

func TestService_SetProgress(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	tests := []struct {
		name      string
		lesson    func(s *testutil.School) string
		completed bool
		wantErr   func(error) bool
		wantStamp *time.Time
	}{
		{
			name:      "complete",
			lesson:    func(s *testutil.School) string { return s.Lessons[0].ID },
			completed: true,
			wantStamp: &now,
		},
		{
			name:   "incomplete clears stamp",
			lesson: func(s *testutil.School) string { return s.Lessons[1].ID },
		},
		{
			name:      "locked",
			lesson:    func(s *testutil.School) string { return s.Lessons[3].ID },
			completed: true,
			wantErr:   func(err error) bool { return err == ErrLessonLocked },
		},
		{
			name:      "unknown",
			lesson:    func(s *testutil.School) string { return "nope" },
			completed: true,
			wantErr:   core.IsNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, school := setup(t)
			lessonID := tt.lesson(school)

			p, err := svc.SetProgress(ctx, testutil.StudentPrincipal, school.Student, lessonID, tt.completed)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr(err), "got %v", err)
				assert.Zero(t, school.DB.Calls(dummydb.OpUpdateLessonProgress))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.completed, p.Completed)
			assert.Equal(t, tt.wantStamp, p.CompletionTimestamp)

			stored, err := school.Client.GetAllProgressForStudent(ctx, testutil.StudentPrincipal)
			require.NoError(t, err)
			assert.Equal(t, []backend.LessonProgress{p}, stored)
		})
	}
}

func TestService_SetProgress_backendFailure(t *testing.T) {
	svc, school := setup(t)
	school.DB.FailWith(dummydb.OpUpdateLessonProgress, errors.New("boom"))
	_, err := svc.SetProgress(context.Background(), testutil.StudentPrincipal, school.Student, school.Lessons[0].ID, true)
	assert.True(t, core.IsBackendFailure(err))
}
