package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/core/lesson"
	"github.com/trezcool/shule/core/role"
	"github.com/trezcool/shule/core/subscription"
	"github.com/trezcool/shule/storage/claims"
	"github.com/trezcool/shule/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	*Server
	conf   *core.Config
	school *testutil.School
	claims subscription.ClaimStore
}

func setup(t *testing.T, provider ...backend.Provider) *app {
	conf := testutil.NewConfig()
	school := testutil.SeedSchool(t)
	store := claimstore.NewMemoryStore()
	logger := &testutil.Logger{}

	var p backend.Provider = backend.Ready(school.Client)
	if len(provider) > 0 {
		p = provider[0]
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	subSvc := subscription.NewService(p, store, nil, logger, subscription.Options{})
	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Provider:   p,
		Resolver:   role.NewResolver(p),
		SubSvc:     subSvc,
		LessonSvc:  lesson.NewService(p, subSvc),
		Validate:   validate,
		Translator: translator,
	})
	return &app{Server: server, conf: conf, school: school, claims: store}
}

func (a *app) token(t *testing.T, principal string) string {
	token, err := GenerateToken(a.conf.SecretKey, NewClaims(a.conf, principal))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (a *app) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	a.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
