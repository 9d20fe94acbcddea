package subscription

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/backend"
)

// FreeLessonCount is how many lessons stay open behind an active paywall.
const FreeLessonCount = 2

type ClaimStatus string

const (
	StatusPending  ClaimStatus = "pending"
	StatusApproved ClaimStatus = "approved"
	// StatusRejected has no producer yet.
	StatusRejected ClaimStatus = "rejected"
)

var (
	ErrClaimExists       = errors.New("claim already exists")
	ErrStatusChanged     = errors.New("claim status changed concurrently")
	ErrPendingClaimExist = errors.New("a pending claim already exists for this class")
)

type (
	// Claim is a payment reference submitted by a student, waiting for an admin to confirm it.
	Claim struct {
		ID          string      `json:"id"`
		StudentID   string      `json:"studentId"`
		StudentName string      `json:"studentName"`
		ClassID     string      `json:"classId"`
		ClassName   string      `json:"className"`
		Reference   string      `json:"reference"`
		Timestamp   int64       `json:"timestamp"` // unix millis
		Status      ClaimStatus `json:"status"`
	}

	NewClaim struct {
		StudentID   string `json:"student_id" validate:"required"`
		StudentName string `json:"student_name"`
		ClassID     string `json:"class_id" validate:"required"`
		ClassName   string `json:"class_name"`
		Reference   string `json:"reference" validate:"notblank"`
	}

	// ConfigUpdate is an admin edit of a class paywall. An empty QRImage keeps the stored one.
	ConfigUpdate struct {
		PaywallEnabled bool   `json:"paywall_enabled"`
		PriceSatoshis  int64  `json:"price_satoshis" validate:"gt=0"`
		QRImage        string `json:"qr_image"`
	}

	LessonAccess struct {
		backend.Lesson
		IsLocked bool `json:"is_locked"`
	}

	// ClaimBuilder returns the claim to append given the current ledger. It may run more than once.
	ClaimBuilder func(claims []Claim) (Claim, error)

	// ClaimStore is the persisted claim ledger.
	// Load treats unreadable data as an empty ledger.
	// Append runs build and writes its claim as one step, so concurrent appends see each other.
	// UpdateStatus only applies when the current status equals from, otherwise it returns ErrStatusChanged.
	ClaimStore interface {
		Load(ctx context.Context) ([]Claim, error)
		Append(ctx context.Context, build ClaimBuilder) (Claim, error)
		UpdateStatus(ctx context.Context, id string, from, to ClaimStatus) (Claim, error)
	}
)

func (c Claim) Time() time.Time {
	return time.Unix(0, c.Timestamp*int64(time.Millisecond)).UTC()
}

// ComputeLockedLessons marks which lessons a student may open, in the order given.
// Nothing is locked without a config, with the paywall disabled or with a subscription.
// Otherwise lessons from index FreeLessonCount onward are locked.
func ComputeLockedLessons(lessons []backend.Lesson, cfg *backend.SubscriptionConfig, hasSubscription bool) []LessonAccess {
	paywalled := cfg != nil && cfg.PaywallEnabled && !hasSubscription
	out := make([]LessonAccess, len(lessons))
	for i, l := range lessons {
		out[i] = LessonAccess{Lesson: l, IsLocked: paywalled && i >= FreeLessonCount}
	}
	return out
}
