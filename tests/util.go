package testutil

import (
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
	"github.com/trezcool/shule/storage/database"
	"github.com/trezcool/shule/storage/database/dummy"
)

// NewConfig returns the configuration used by tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Shule",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			DisableReqLogs:     true,
			JWTExpirationDelta: time.Hour,
		},
		Claims: core.ClaimsConfig{Store: "memory", StorageKey: "subscription_payment_claims"},
		Cache:  core.CacheConfig{Size: 128, TTL: time.Minute},
		Email: core.EmailConfig{
			DefaultFromEmail: "noreply@shule.test",
			AdminNotifyEmail: "admin@shule.test",
		},
	}
}

// Logger records messages instead of printing them.
type Logger struct {
	mu     sync.Mutex
	Errors []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) Debug(msg string, args ...interface{}) {}
func (l *Logger) Info(msg string, args ...interface{})  {}
func (l *Logger) Warn(msg string, args ...interface{})  {}
func (l *Logger) Fatal(msg string, args ...interface{}) { l.Error(msg, args...) }

func (l *Logger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

// School is a seeded dummy backend: one paywalled class with five lessons and one student.
type School struct {
	DB      *dummydb.DB
	Client  backend.Client
	Class   backend.Class
	Student backend.Student
	Lessons []backend.Lesson
}

const (
	StudentPrincipal = "student-principal"
	TeacherPrincipal = "teacher-principal"
	AdminPrincipal   = "admin-principal"
)

func SeedSchool(t *testing.T) *School {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	cls := db.CreateClass(backend.Class{Name: "Form 1", Active: true})
	db.SetConfig(cls.ID, backend.SubscriptionConfig{PriceSatoshis: 50000, QRImage: "qr/form1.png", PaywallEnabled: true})

	start := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)
	lessons := make([]backend.Lesson, 0, 5)
	for i, title := range []string{"L1", "L2", "L3", "L4", "L5"} {
		lessons = append(lessons, db.CreateLesson(backend.Lesson{
			Title:     title,
			ClassID:   cls.ID,
			Active:    true,
			CreatedAt: start.Add(time.Duration(i) * time.Hour),
		}))
	}

	db.SetProfile(StudentPrincipal, backend.UserProfile{Name: "Amani Juma", Role: "student"})
	student := db.CreateStudent(backend.Student{
		Principal: StudentPrincipal,
		Active:    true,
		ClassID:   cls.ID,
		FirstName: "Amani",
		LastName:  "Juma",
	})

	db.SetProfile(TeacherPrincipal, backend.UserProfile{Name: "Zawadi Mwangi", Role: "teacher"})
	db.CreateTeacher(backend.Teacher{Principal: TeacherPrincipal, Active: true, FirstName: "Zawadi", LastName: "Mwangi"})

	db.SetProfile(AdminPrincipal, backend.UserProfile{Name: "Baraka", Role: "admin"})
	db.SetAdmin(AdminPrincipal)

	return &School{
		DB:      db,
		Client:  dummydb.NewClient(db),
		Class:   cls,
		Student: student,
		Lessons: lessons,
	}
}

// PrepareDB creates and migrates the test database. Tests using it are skipped unless DB_TESTS is set.
func PrepareDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("DB_TESTS") == "" {
		t.Skip("DB_TESTS not set")
	}
	conf := core.NewConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("database.CreateIfNotExist() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}
