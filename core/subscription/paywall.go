package subscription

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
)

type PaywallStatus string

const (
	PaywallNone     PaywallStatus = "none"     // no paywall on the class
	PaywallActive   PaywallStatus = "active"   // subscribed, or a claim was approved
	PaywallPending  PaywallStatus = "pending"  // a claim awaits approval
	PaywallRequired PaywallStatus = "required" // payment needed
)

// PaywallState is what a student sees about the paywall of their class.
type PaywallState struct {
	Status           PaywallStatus `json:"status"`
	ClassID          string        `json:"class_id"`
	PriceSatoshis    int64         `json:"price_satoshis"`
	PriceDisplay     float64       `json:"price_display"`
	QRImage          string        `json:"qr_image,omitempty"`
	HasSubscription  bool          `json:"has_subscription"`
	PendingReference string        `json:"pending_reference,omitempty"`
	Claims           []Claim       `json:"claims"`
}

// DisplayPrice converts minor units to the displayed amount.
func DisplayPrice(priceSatoshis int64) float64 {
	return float64(priceSatoshis) / 100
}

// Paywall computes the paywall card of a student for their class.
func (svc *Service) Paywall(ctx context.Context, student backend.Student) (PaywallState, error) {
	state := PaywallState{Status: PaywallNone, ClassID: student.ClassID, Claims: make([]Claim, 0)}

	cfg, err := svc.GetConfig(ctx, student.ClassID)
	if err != nil {
		return PaywallState{}, err
	}
	if cfg == nil || !cfg.PaywallEnabled {
		return state, nil
	}
	state.PriceSatoshis = cfg.PriceSatoshis
	state.PriceDisplay = DisplayPrice(cfg.PriceSatoshis)
	state.QRImage = cfg.QRImage

	if state.HasSubscription, err = svc.HasAccess(ctx, student.ID, student.ClassID); err != nil {
		return PaywallState{}, err
	}
	if state.Claims, err = svc.ListMyClaims(ctx, student.ID, student.ClassID); err != nil {
		return PaywallState{}, errors.Wrap(err, "listing claims")
	}

	var approved bool
	for _, c := range state.Claims {
		switch c.Status {
		case StatusApproved:
			approved = true
		case StatusPending:
			state.PendingReference = c.Reference
		}
	}

	switch {
	case state.HasSubscription || approved:
		state.Status = PaywallActive
	case state.PendingReference != "":
		state.Status = PaywallPending
	default:
		state.Status = PaywallRequired
	}
	return state, nil
}

// LessonsFor returns the lessons of a student's class with their lock status.
func (svc *Service) LessonsFor(ctx context.Context, student backend.Student) ([]LessonAccess, error) {
	client, err := svc.provider.Client()
	if err != nil {
		return nil, err
	}
	lessons, err := client.GetLessons(ctx, backend.LessonFilter{ClassID: student.ClassID})
	if err != nil {
		return nil, core.NewBackendError("getLessons", err)
	}
	cfg, err := svc.GetConfig(ctx, student.ClassID)
	if err != nil {
		return nil, err
	}

	var subscribed bool
	if cfg != nil && cfg.PaywallEnabled {
		if subscribed, err = svc.HasAccess(ctx, student.ID, student.ClassID); err != nil {
			return nil, err
		}
	}
	return ComputeLockedLessons(lessons, cfg, subscribed), nil
}
