package backend

import "time"

type (
	// UserProfile is the self-declared profile of a caller.
	UserProfile struct {
		Name string `json:"name" validate:"notblank"`
		Role string `json:"role" validate:"notblank"`
	}

	Student struct {
		ID        string  `json:"id"`
		Principal string  `json:"principal"`
		Active    bool    `json:"active"`
		ClassID   string  `json:"class_id"`
		CourseID  *string `json:"course_id"`
		FirstName string  `json:"first_name"`
		LastName  string  `json:"last_name"`
	}

	Teacher struct {
		ID        string `json:"id"`
		Principal string `json:"principal"`
		Active    bool   `json:"active"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}

	Class struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Active      bool   `json:"active"`
	}

	Lesson struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		ClassID     string    `json:"class_id"`
		CourseID    string    `json:"course_id"`
		VideoSource string    `json:"video_source"`
		VideoURL    string    `json:"video_url"`
		Active      bool      `json:"active"`
		CreatedAt   time.Time `json:"created_at"`
	}

	LessonProgress struct {
		LessonID            string     `json:"lesson_id"`
		Completed           bool       `json:"completed"`
		CompletionTimestamp *time.Time `json:"completion_timestamp"`
	}

	// SubscriptionConfig is the paywall setup of a class. A class without one has no paywall.
	SubscriptionConfig struct {
		PriceSatoshis  int64  `json:"price_satoshis"`
		QRImage        string `json:"qr_image,omitempty"`
		PaywallEnabled bool   `json:"paywall_enabled"`
	}

	// LessonFilter narrows GetLessons. Empty fields match everything.
	LessonFilter struct {
		ClassID  string
		CourseID string
	}
)

// FullName returns the display name of the student.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

func (t Teacher) FullName() string {
	if t.LastName == "" {
		return t.FirstName
	}
	return t.FirstName + " " + t.LastName
}
