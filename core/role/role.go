package role

import (
	"encoding/json"

	"github.com/trezcool/shule/core/backend"
)

// Role is the effective role of a caller. It is derived, never stored.
type Role int

const (
	Unauthenticated Role = iota
	Initializing
	Admin
	Teacher
	Student
	Unassigned
)

var roleNames = map[Role]string{
	Unauthenticated: "unauthenticated",
	Initializing:    "initializing",
	Admin:           "admin",
	Teacher:         "teacher",
	Student:         "student",
	Unassigned:      "unassigned",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Identity is an authenticated caller.
type Identity struct {
	Principal string
}

// Snapshot holds whatever has been fetched so far for one caller.
type Snapshot struct {
	Authenticated bool
	ClientReady   bool

	ProfileFetched bool
	Profile        *backend.UserProfile
	AdminFetched   bool
	IsAdmin        bool

	// only fetched once the profile is known to exist
	StudentFetched bool
	Student        *backend.Student
	TeacherFetched bool
	Teacher        *backend.Teacher
}

type Resolution struct {
	Role              Role                 `json:"role"`
	UserProfile       *backend.UserProfile `json:"user_profile"`
	IsAuthenticated   bool                 `json:"is_authenticated"`
	IsLoading         bool                 `json:"is_loading"`
	IsFetched         bool                 `json:"is_fetched"`
	IsAdmin           bool                 `json:"is_admin"`
	IsTeacher         bool                 `json:"is_teacher"`
	IsStudent         bool                 `json:"is_student"`
	NeedsProfileSetup bool                 `json:"needs_profile_setup"`
	StudentProfile    *backend.Student     `json:"student_profile"`
	TeacherProfile    *backend.Teacher     `json:"teacher_profile"`
}

// Resolve combines a snapshot into a Resolution.
// Precedence is admin > teacher > student. The admin flag alone grants Admin.
func Resolve(s Snapshot) Resolution {
	if !s.Authenticated {
		return Resolution{Role: Unauthenticated}
	}

	res := Resolution{
		IsAuthenticated: true,
		UserProfile:     s.Profile,
		IsFetched:       s.ClientReady && s.ProfileFetched && s.AdminFetched,
	}
	if s.Profile != nil {
		res.StudentProfile = s.Student
		res.TeacherProfile = s.Teacher
	}

	dependentPending := s.Profile != nil && !(s.StudentFetched && s.TeacherFetched)
	res.IsLoading = !res.IsFetched || dependentPending

	switch {
	case s.AdminFetched && s.IsAdmin:
		res.Role = Admin
	case res.IsLoading:
		res.Role = Initializing
	case res.TeacherProfile != nil:
		res.Role = Teacher
	case res.StudentProfile != nil:
		res.Role = Student
	default:
		res.Role = Unassigned
	}

	res.IsAdmin = res.Role == Admin
	res.IsTeacher = res.Role == Teacher
	res.IsStudent = res.Role == Student
	res.NeedsProfileSetup = res.IsFetched && s.Profile == nil
	return res
}
