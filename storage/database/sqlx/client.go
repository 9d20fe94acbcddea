package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
)

type (
	studentRow struct {
		ID        string      `db:"id"`
		Principal string      `db:"principal"`
		Active    bool        `db:"active"`
		ClassID   string      `db:"class_id"`
		CourseID  null.String `db:"course_id"`
		FirstName string      `db:"first_name"`
		LastName  string      `db:"last_name"`
	}

	lessonRow struct {
		ID          string      `db:"id"`
		Title       string      `db:"title"`
		Description string      `db:"description"`
		ClassID     string      `db:"class_id"`
		CourseID    null.String `db:"course_id"`
		VideoSource string      `db:"video_source"`
		VideoURL    string      `db:"video_url"`
		Active      bool        `db:"active"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	progressRow struct {
		LessonID            string    `db:"lesson_id"`
		Completed           bool      `db:"completed"`
		CompletionTimestamp null.Time `db:"completion_timestamp"`
	}

	configRow struct {
		PriceSatoshis  int64       `db:"price_satoshis"`
		QRImage        null.String `db:"qr_image"`
		PaywallEnabled bool        `db:"paywall_enabled"`
	}
)

func (r studentRow) toModel() *backend.Student {
	return &backend.Student{
		ID:        r.ID,
		Principal: r.Principal,
		Active:    r.Active,
		ClassID:   r.ClassID,
		CourseID:  r.CourseID.Ptr(),
		FirstName: r.FirstName,
		LastName:  r.LastName,
	}
}

func (r lessonRow) toModel() backend.Lesson {
	return backend.Lesson{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		ClassID:     r.ClassID,
		CourseID:    r.CourseID.String,
		VideoSource: r.VideoSource,
		VideoURL:    r.VideoURL,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
}

// client is the postgres system of record.
type client struct {
	db *sqlx.DB
}

var _ backend.Client = (*client)(nil) // interface compliance check

func NewClient(db *sql.DB) backend.Client {
	return &client{db: sqlx.NewDb(db, "postgres")}
}

// isUUID guards uuid columns so malformed ids read as missing rows.
func isUUID(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func (c *client) GetCallerUserProfile(ctx context.Context, principal string) (*backend.UserProfile, error) {
	var p backend.UserProfile
	err := c.db.QueryRowxContext(ctx, `SELECT name, role FROM user_profile WHERE principal = $1`, principal).Scan(&p.Name, &p.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting user profile")
	}
	return &p, nil
}

func (c *client) SaveCallerUserProfile(ctx context.Context, principal string, profile backend.UserProfile) error {
	const q = `
		INSERT INTO user_profile (principal, name, role) VALUES ($1, $2, $3)
		ON CONFLICT (principal) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, updated_at = now()`
	_, err := c.db.ExecContext(ctx, q, principal, profile.Name, profile.Role)
	return errors.Wrap(err, "saving user profile")
}

func (c *client) IsCallerAdmin(ctx context.Context, principal string) (bool, error) {
	var exists bool
	err := c.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM admin WHERE principal = $1)`, principal)
	return exists, errors.Wrap(err, "checking admin")
}

func (c *client) GetMyStudentProfile(ctx context.Context, principal string) (*backend.Student, error) {
	var row studentRow
	const q = `SELECT id, principal, active, class_id, course_id, first_name, last_name FROM student WHERE principal = $1`
	err := c.db.GetContext(ctx, &row, q, principal)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting student")
	}
	return row.toModel(), nil
}

func (c *client) GetMyTeacherProfile(ctx context.Context, principal string) (*backend.Teacher, error) {
	var t backend.Teacher
	const q = `SELECT id, principal, active, first_name, last_name FROM teacher WHERE principal = $1`
	err := c.db.QueryRowxContext(ctx, q, principal).Scan(&t.ID, &t.Principal, &t.Active, &t.FirstName, &t.LastName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting teacher")
	}
	return &t, nil
}

func (c *client) AssignAdmin(ctx context.Context, principal string) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO admin (principal) VALUES ($1) ON CONFLICT DO NOTHING`, principal)
	return errors.Wrap(err, "assigning admin")
}

func (c *client) GetClasses(ctx context.Context) ([]backend.Class, error) {
	classes := make([]backend.Class, 0)
	err := c.db.SelectContext(ctx, &classes, `SELECT id, name, description, active FROM class ORDER BY created_at, id`)
	return classes, errors.Wrap(err, "selecting classes")
}

func (c *client) GetClassSubscriptionConfig(ctx context.Context, classID string) (*backend.SubscriptionConfig, error) {
	if !isUUID(classID) {
		return nil, nil
	}
	var row configRow
	const q = `SELECT price_satoshis, qr_image, paywall_enabled FROM class_subscription_config WHERE class_id = $1`
	err := c.db.GetContext(ctx, &row, q, classID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "selecting subscription config")
	}
	return &backend.SubscriptionConfig{
		PriceSatoshis:  row.PriceSatoshis,
		QRImage:        row.QRImage.String,
		PaywallEnabled: row.PaywallEnabled,
	}, nil
}

func (c *client) SetClassSubscriptionConfig(ctx context.Context, classID string, cfg backend.SubscriptionConfig) error {
	if !isUUID(classID) {
		return core.NewNotFoundError("class", classID)
	}
	const q = `
		INSERT INTO class_subscription_config (class_id, price_satoshis, qr_image, paywall_enabled)
		SELECT id, $2, $3, $4 FROM class WHERE id = $1
		ON CONFLICT (class_id) DO UPDATE
		SET price_satoshis = EXCLUDED.price_satoshis, qr_image = EXCLUDED.qr_image,
		    paywall_enabled = EXCLUDED.paywall_enabled, updated_at = now()`
	res, err := c.db.ExecContext(ctx, q, classID, cfg.PriceSatoshis, null.NewString(cfg.QRImage, cfg.QRImage != ""), cfg.PaywallEnabled)
	if err != nil {
		return errors.Wrap(err, "saving subscription config")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.NewNotFoundError("class", classID)
	}
	return nil
}

func (c *client) HasClassSubscription(ctx context.Context, studentID, classID string) (bool, error) {
	if !isUUID(studentID, classID) {
		return false, nil
	}
	var exists bool
	const q = `SELECT EXISTS (SELECT 1 FROM class_subscription WHERE student_id = $1 AND class_id = $2)`
	err := c.db.GetContext(ctx, &exists, q, studentID, classID)
	return exists, errors.Wrap(err, "checking subscription")
}

func (c *client) ActivateClassSubscription(ctx context.Context, studentID, classID string) error {
	if !isUUID(studentID, classID) {
		return core.NewNotFoundError("student", studentID)
	}
	const q = `
		INSERT INTO class_subscription (student_id, class_id)
		SELECT s.id, c.id FROM student s, class c WHERE s.id = $1 AND c.id = $2
		ON CONFLICT DO NOTHING`
	res, err := c.db.ExecContext(ctx, q, studentID, classID)
	if err != nil {
		return errors.Wrap(err, "activating subscription")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// either already active or unknown student / class
		var exists bool
		if err := c.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM class_subscription WHERE student_id = $1 AND class_id = $2)`, studentID, classID); err != nil {
			return errors.Wrap(err, "activating subscription")
		}
		if !exists {
			return core.NewNotFoundError("student", studentID)
		}
	}
	return nil
}

func (c *client) GetLessons(ctx context.Context, filter backend.LessonFilter) ([]backend.Lesson, error) {
	q := `SELECT id, title, description, class_id, course_id, video_source, video_url, active, created_at FROM lesson WHERE true`
	args := make([]interface{}, 0, 2)
	if filter.ClassID != "" {
		if !isUUID(filter.ClassID) {
			return make([]backend.Lesson, 0), nil
		}
		args = append(args, filter.ClassID)
		q += ` AND class_id = $1`
	}
	if filter.CourseID != "" {
		if !isUUID(filter.CourseID) {
			return make([]backend.Lesson, 0), nil
		}
		args = append(args, filter.CourseID)
		q += ` AND course_id = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY ` + core.DBOrdering{Field: "created_at", Ascending: true}.String() + `, id`

	var rows []lessonRow
	if err := c.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting lessons")
	}
	lessons := make([]backend.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.toModel())
	}
	return lessons, nil
}

func (c *client) GetAllProgressForStudent(ctx context.Context, principal string) ([]backend.LessonProgress, error) {
	const q = `
		SELECT p.lesson_id, p.completed, p.completion_timestamp
		FROM lesson_progress p JOIN lesson l ON l.id = p.lesson_id
		WHERE p.principal = $1 ORDER BY l.created_at, l.id`
	var rows []progressRow
	if err := c.db.SelectContext(ctx, &rows, q, principal); err != nil {
		return nil, errors.Wrap(err, "selecting progress")
	}
	progress := make([]backend.LessonProgress, 0, len(rows))
	for _, r := range rows {
		progress = append(progress, backend.LessonProgress{
			LessonID:            r.LessonID,
			Completed:           r.Completed,
			CompletionTimestamp: r.CompletionTimestamp.Ptr(),
		})
	}
	return progress, nil
}

func (c *client) UpdateLessonProgress(ctx context.Context, principal, lessonID string, completed bool, completionTimestamp *time.Time) error {
	if !isUUID(lessonID) {
		return core.NewNotFoundError("lesson", lessonID)
	}
	const q = `
		INSERT INTO lesson_progress (principal, lesson_id, completed, completion_timestamp) VALUES ($1, $2, $3, $4)
		ON CONFLICT (principal, lesson_id) DO UPDATE
		SET completed = EXCLUDED.completed, completion_timestamp = EXCLUDED.completion_timestamp`
	_, err := c.db.ExecContext(ctx, q, principal, lessonID, completed, null.TimeFromPtr(completionTimestamp))
	return errors.Wrap(err, "updating progress")
}
