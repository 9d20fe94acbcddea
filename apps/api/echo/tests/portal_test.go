package tests

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/lesson"
	"github.com/trezcool/shule/core/subscription"
	"github.com/trezcool/shule/storage/database/dummy"
	"github.com/trezcool/shule/tests"
)

type resolutionResp struct {
	Role              string           `json:"role"`
	IsAuthenticated   bool             `json:"is_authenticated"`
	IsLoading         bool             `json:"is_loading"`
	IsStudent         bool             `json:"is_student"`
	IsAdmin           bool             `json:"is_admin"`
	NeedsProfileSetup bool             `json:"needs_profile_setup"`
	StudentProfile    *backend.Student `json:"student_profile"`
}

func TestHome(t *testing.T) {
	a := setup(t)
	rec := a.do(t, httpTest{method: http.MethodGet, path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Shule API!", rec.Body.String())
}

func TestMe(t *testing.T) {
	a := setup(t)

	t.Run("anonymous", func(t *testing.T) {
		rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/me"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res resolutionResp
		unmarchall(t, rec, &res)
		assert.Equal(t, "unauthenticated", res.Role)
		assert.False(t, res.IsAuthenticated)
		assert.False(t, res.IsLoading)
	})

	t.Run("student", func(t *testing.T) {
		rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/me", token: a.token(t, testutil.StudentPrincipal)})
		require.Equal(t, http.StatusOK, rec.Code)
		var res resolutionResp
		unmarchall(t, rec, &res)
		assert.Equal(t, "student", res.Role)
		assert.True(t, res.IsStudent)
		require.NotNil(t, res.StudentProfile)
		assert.Equal(t, a.school.Student.ID, res.StudentProfile.ID)
	})

	t.Run("admin", func(t *testing.T) {
		rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/me", token: a.token(t, testutil.AdminPrincipal)})
		require.Equal(t, http.StatusOK, rec.Code)
		var res resolutionResp
		unmarchall(t, rec, &res)
		assert.Equal(t, "admin", res.Role)
		assert.True(t, res.IsAdmin)
	})

	t.Run("new user needs profile setup", func(t *testing.T) {
		rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/me", token: a.token(t, "newcomer")})
		require.Equal(t, http.StatusOK, rec.Code)
		var res resolutionResp
		unmarchall(t, rec, &res)
		assert.Equal(t, "unassigned", res.Role)
		assert.True(t, res.NeedsProfileSetup)
	})

	t.Run("invalid token", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodGet,
			path:     "/v1/me",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"}),
		}
		checkCodeAndData(t, tt, a.do(t, tt))
	})
}

func TestMe_NotReady(t *testing.T) {
	a := setup(t, backend.NewLazy())
	tests := []httpTest{
		{name: "me", method: http.MethodGet, path: "/v1/me"},
		{name: "student lessons", method: http.MethodGet, path: "/v1/student/lessons"},
		{name: "admin claims", method: http.MethodGet, path: "/v1/admin/claims"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token = a.token(t, testutil.StudentPrincipal)
			tt.wantCode = http.StatusServiceUnavailable
			tt.wantData = marchallObj(t, httpErr{Error: "loading"})
			checkCodeAndData(t, tt, a.do(t, tt))
		})
	}
}

func TestSaveProfile(t *testing.T) {
	a := setup(t)
	token := a.token(t, "newcomer")

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodPut,
			path:     "/v1/me/profile",
			body:     []byte(`{"name": "Neema", "role": "student"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid",
			method:   http.MethodPut,
			path:     "/v1/me/profile",
			body:     []byte(`{"name": "  ", "role": "janitor"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "this field cannot be blank", "role": "role must be one of [student teacher]"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(t, tt))
		})
	}

	t.Run("valid", func(t *testing.T) {
		rec := a.do(t, httpTest{method: http.MethodPut, path: "/v1/me/profile", body: []byte(`{"name": " Neema ", "role": "student"}`), token: token})
		require.Equal(t, http.StatusOK, rec.Code)
		var res resolutionResp
		unmarchall(t, rec, &res)
		assert.False(t, res.NeedsProfileSetup)
		assert.Equal(t, "unassigned", res.Role)
	})
}

func TestRoleGates(t *testing.T) {
	a := setup(t)
	forbidden := marchallObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "student route without token", method: http.MethodGet, path: "/v1/student/lessons", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "student route as teacher", method: http.MethodGet, path: "/v1/student/lessons", token: a.token(t, testutil.TeacherPrincipal), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "admin route as student", method: http.MethodGet, path: "/v1/admin/claims", token: a.token(t, testutil.StudentPrincipal), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "teacher route as student", method: http.MethodGet, path: "/v1/teacher/profile", token: a.token(t, testutil.StudentPrincipal), wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "teacher route as teacher", method: http.MethodGet, path: "/v1/teacher/profile", token: a.token(t, testutil.TeacherPrincipal), wantCode: http.StatusOK},
		{name: "admin route as admin", method: http.MethodGet, path: "/v1/admin/claims", token: a.token(t, testutil.AdminPrincipal), wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(t, tt))
		})
	}
}

func TestStudentLessons(t *testing.T) {
	a := setup(t)
	token := a.token(t, testutil.StudentPrincipal)

	rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/student/lessons", token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []lesson.StudentLesson
	unmarchall(t, rec, &lessons)
	require.Len(t, lessons, 5)
	for i, l := range lessons {
		assert.Equal(t, a.school.Lessons[i].ID, l.ID)
		assert.Equal(t, i >= subscription.FreeLessonCount, l.IsLocked, l.Title)
	}

	t.Run("progress on free lesson", func(t *testing.T) {
		rec := a.do(t, httpTest{
			method: http.MethodPut,
			path:   "/v1/student/lessons/" + a.school.Lessons[0].ID + "/progress",
			body:   []byte(`{"completed": true}`),
			token:  token,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var progress backend.LessonProgress
		unmarchall(t, rec, &progress)
		assert.True(t, progress.Completed)
		assert.NotNil(t, progress.CompletionTimestamp)
	})

	t.Run("progress on locked lesson", func(t *testing.T) {
		calls := a.school.DB.Calls(dummydb.OpUpdateLessonProgress)
		tt := httpTest{
			method:   http.MethodPut,
			path:     "/v1/student/lessons/" + a.school.Lessons[3].ID + "/progress",
			body:     []byte(`{"completed": true}`),
			token:    token,
			wantCode: http.StatusPaymentRequired,
			wantData: marchallObj(t, httpErr{Error: lesson.ErrLessonLocked.Error()}),
		}
		checkCodeAndData(t, tt, a.do(t, tt))
		assert.Equal(t, calls, a.school.DB.Calls(dummydb.OpUpdateLessonProgress))
	})

	t.Run("progress on unknown lesson", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPut,
			path:     "/v1/student/lessons/nope/progress",
			body:     []byte(`{"completed": true}`),
			token:    token,
			wantCode: http.StatusNotFound,
		}
		checkCodeAndData(t, tt, a.do(t, tt))
	})

	t.Run("backend failure", func(t *testing.T) {
		a.school.DB.FailWith(dummydb.OpGetLessons, errors.New("replica unavailable"))
		defer a.school.DB.FailWith(dummydb.OpGetLessons, nil)

		tt := httpTest{
			method:   http.MethodGet,
			path:     "/v1/student/lessons",
			token:    token,
			wantCode: http.StatusBadGateway,
			wantData: marchallObj(t, httpErr{Error: "backend unavailable, please retry"}),
		}
		checkCodeAndData(t, tt, a.do(t, tt))
	})
}

func TestPaymentClaimFlow(t *testing.T) {
	a := setup(t)
	studentToken := a.token(t, testutil.StudentPrincipal)
	adminToken := a.token(t, testutil.AdminPrincipal)

	paywall := func(t *testing.T) subscription.PaywallState {
		rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/student/subscription", token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var state subscription.PaywallState
		unmarchall(t, rec, &state)
		return state
	}

	state := paywall(t)
	assert.Equal(t, subscription.PaywallRequired, state.Status)
	assert.Equal(t, int64(50000), state.PriceSatoshis)
	assert.Equal(t, 500.0, state.PriceDisplay)
	assert.Equal(t, "qr/form1.png", state.QRImage)

	t.Run("blank reference", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPost,
			path:     "/v1/student/subscription/claims",
			body:     []byte(`{"reference": "   "}`),
			token:    studentToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"reference": "this field cannot be blank"}`),
		}
		checkCodeAndData(t, tt, a.do(t, tt))
	})

	rec := a.do(t, httpTest{
		method: http.MethodPost,
		path:   "/v1/student/subscription/claims",
		body:   []byte(`{"reference": " TX123 "}`),
		token:  studentToken,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var claim subscription.Claim
	unmarchall(t, rec, &claim)
	assert.Equal(t, "TX123", claim.Reference)
	assert.Equal(t, subscription.StatusPending, claim.Status)
	assert.Equal(t, "Amani Juma", claim.StudentName)
	assert.Equal(t, "Form 1", claim.ClassName)

	stored, err := a.claims.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	state = paywall(t)
	assert.Equal(t, subscription.PaywallPending, state.Status)
	assert.Equal(t, "TX123", state.PendingReference)

	rec = a.do(t, httpTest{method: http.MethodGet, path: "/v1/admin/claims", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []subscription.Claim
	unmarchall(t, rec, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, claim.ID, pending[0].ID)

	t.Run("approve unknown claim", func(t *testing.T) {
		tt := httpTest{method: http.MethodPost, path: "/v1/admin/claims/nope/approve", token: adminToken, wantCode: http.StatusNotFound}
		checkCodeAndData(t, tt, a.do(t, tt))
	})

	t.Run("approve while backend fails", func(t *testing.T) {
		a.school.DB.FailWith(dummydb.OpActivateClassSubscription, errors.New("canister trapped"))
		defer a.school.DB.FailWith(dummydb.OpActivateClassSubscription, nil)

		tt := httpTest{method: http.MethodPost, path: "/v1/admin/claims/" + claim.ID + "/approve", token: adminToken, wantCode: http.StatusBadGateway}
		checkCodeAndData(t, tt, a.do(t, tt))
		assert.Equal(t, subscription.PaywallPending, paywall(t).Status)
	})

	rec = a.do(t, httpTest{method: http.MethodPost, path: "/v1/admin/claims/" + claim.ID + "/approve", token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	unmarchall(t, rec, &claim)
	assert.Equal(t, subscription.StatusApproved, claim.Status)

	state = paywall(t)
	assert.Equal(t, subscription.PaywallActive, state.Status)
	assert.True(t, state.HasSubscription)

	rec = a.do(t, httpTest{method: http.MethodGet, path: "/v1/student/lessons", token: studentToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []lesson.StudentLesson
	unmarchall(t, rec, &lessons)
	for _, l := range lessons {
		assert.False(t, l.IsLocked, l.Title)
	}

	rec = a.do(t, httpTest{method: http.MethodGet, path: "/v1/student/subscription/claims", token: studentToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []subscription.Claim
	unmarchall(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, subscription.StatusApproved, mine[0].Status)
}

func TestSubscriptionConfig(t *testing.T) {
	a := setup(t)
	token := a.token(t, testutil.AdminPrincipal)
	path := "/v1/admin/classes/" + a.school.Class.ID + "/subscription"

	tests := []httpTest{
		{
			name:     "get",
			method:   http.MethodGet,
			path:     path,
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"price_satoshis": 50000, "qr_image": "qr/form1.png", "paywall_enabled": true}`),
		},
		{
			name:     "zero price",
			method:   http.MethodPut,
			path:     path,
			body:     []byte(`{"paywall_enabled": true, "price_satoshis": 0}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"price_satoshis": "this field must be greater than 0"}`),
		},
		{
			name:     "keeps stored qr",
			method:   http.MethodPut,
			path:     path,
			body:     []byte(`{"paywall_enabled": false, "price_satoshis": 75000}`),
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"price_satoshis": 75000, "qr_image": "qr/form1.png", "paywall_enabled": false}`),
		},
		{
			name:     "unknown class",
			method:   http.MethodPut,
			path:     "/v1/admin/classes/nope/subscription",
			body:     []byte(`{"paywall_enabled": true, "price_satoshis": 100, "qr_image": "qr.png"}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "unconfigured class",
			method:   http.MethodGet,
			path:     "/v1/admin/classes/nope/subscription",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`null`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(t, tt))
		})
	}
}

func TestActivateSubscription(t *testing.T) {
	a := setup(t)
	token := a.token(t, testutil.AdminPrincipal)
	path := "/v1/admin/classes/" + a.school.Class.ID + "/subscriptions"

	tests := []httpTest{
		{
			name:     "missing student",
			method:   http.MethodPost,
			path:     path,
			body:     []byte(`{"student_id": ""}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_id": "this field cannot be blank"}`),
		},
		{
			name:     "unknown student",
			method:   http.MethodPost,
			path:     path,
			body:     []byte(`{"student_id": "nope"}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "valid",
			method:   http.MethodPost,
			path:     path,
			body:     marchallObj(t, map[string]string{"student_id": a.school.Student.ID}),
			token:    token,
			wantCode: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(t, tt))
		})
	}

	rec := a.do(t, httpTest{method: http.MethodGet, path: "/v1/student/subscription", token: a.token(t, testutil.StudentPrincipal)})
	require.Equal(t, http.StatusOK, rec.Code)
	var state subscription.PaywallState
	unmarchall(t, rec, &state)
	assert.Equal(t, subscription.PaywallActive, state.Status)
}

func TestMetrics(t *testing.T) {
	a := setup(t)
	a.do(t, httpTest{method: http.MethodGet, path: "/v1/me"})
	rec := a.do(t, httpTest{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shule_http_requests_total")
}
