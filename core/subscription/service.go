package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/backend"
)

var nowFunc = time.Now

var (
	claimsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shule_claims_submitted_total",
		Help: "Payment claims submitted by students.",
	})
	claimsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shule_claims_approved_total",
		Help: "Payment claims approved by admins.",
	})
	activationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shule_subscription_activation_failures_total",
		Help: "Backend subscription activations that failed.",
	})
)

type (
	Options struct {
		// UniquePending refuses a second pending claim for the same student and class.
		UniquePending bool
		// NotifyTo receives an email for every submitted claim.
		NotifyTo []mail.Address
	}

	Service struct {
		provider backend.Provider
		store    ClaimStore
		mailSvc  core.EmailService
		logger   core.Logger
		opts     Options
	}
)

func NewService(provider backend.Provider, store ClaimStore, mailSvc core.EmailService, logger core.Logger, opts Options) *Service {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(provider, "provider"),
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		panic(err)
	}
	return &Service{
		provider: provider,
		store:    store,
		mailSvc:  mailSvc,
		logger:   logger,
		opts:     opts,
	}
}

// SubmitPaymentClaim records a pending claim. A blank reference is rejected before the ledger is read.
func (svc *Service) SubmitPaymentClaim(ctx context.Context, nc NewClaim) (Claim, error) {
	ref := core.CleanString(nc.Reference)
	if ref == "" {
		return Claim{}, core.NewValidationError(nil, core.FieldError{Field: "reference", Error: "this field cannot be blank"})
	}

	ts := nowFunc().UnixNano() / int64(time.Millisecond)
	claim, err := svc.store.Append(ctx, func(claims []Claim) (Claim, error) {
		return svc.buildClaim(claims, nc, ref, ts)
	})
	if err != nil {
		return Claim{}, errors.Wrap(err, "saving claim")
	}
	claimsSubmittedTotal.Inc()
	svc.notify(claim)
	return claim, nil
}

// buildClaim runs inside the store write, against the ledger as it is at that moment.
// A taken id is bumped by a millisecond until it is free.
func (svc *Service) buildClaim(claims []Claim, nc NewClaim, ref string, ts int64) (Claim, error) {
	taken := make(map[string]bool, len(claims))
	for _, c := range claims {
		if svc.opts.UniquePending && c.StudentID == nc.StudentID && c.ClassID == nc.ClassID && c.Status == StatusPending {
			return Claim{}, core.NewValidationError(ErrPendingClaimExist, core.FieldError{Field: "reference", Error: ErrPendingClaimExist.Error()})
		}
		taken[c.ID] = true
	}
	id := claimID(nc.StudentID, nc.ClassID, ts)
	for taken[id] {
		ts++
		id = claimID(nc.StudentID, nc.ClassID, ts)
	}
	return Claim{
		ID:          id,
		StudentID:   nc.StudentID,
		StudentName: nc.StudentName,
		ClassID:     nc.ClassID,
		ClassName:   nc.ClassName,
		Reference:   ref,
		Timestamp:   ts,
		Status:      StatusPending,
	}, nil
}

func claimID(studentID, classID string, ts int64) string {
	return fmt.Sprintf("%s-%s-%d", studentID, classID, ts)
}

func (svc *Service) notify(claim Claim) {
	if svc.mailSvc == nil || len(svc.opts.NotifyTo) == 0 {
		return
	}
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "%s submitted a payment claim for %s.\r\n\r\n", claim.StudentName, claim.ClassName)
	_, _ = fmt.Fprintf(body, "Reference: %s\r\n", claim.Reference)
	_, _ = fmt.Fprintf(body, "Claim: %s\r\n", claim.ID)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      svc.opts.NotifyTo,
		Subject: "New payment claim",
		BodyStr: body.String(),
	})
}

// ListMyClaims returns the claims of one student for one class, in submission order.
func (svc *Service) ListMyClaims(ctx context.Context, studentID, classID string) ([]Claim, error) {
	claims, err := svc.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading claims")
	}
	mine := make([]Claim, 0)
	for _, c := range claims {
		if c.StudentID == studentID && c.ClassID == classID {
			mine = append(mine, c)
		}
	}
	return mine, nil
}

// ListPendingClaims returns every pending claim across students and classes.
func (svc *Service) ListPendingClaims(ctx context.Context) ([]Claim, error) {
	claims, err := svc.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading claims")
	}
	pending := make([]Claim, 0)
	for _, c := range claims {
		if c.Status == StatusPending {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// ApproveClaim activates the subscription on the backend and only then marks the claim approved.
// On a backend failure the claim stays pending and the call can be retried.
func (svc *Service) ApproveClaim(ctx context.Context, claimID string) (Claim, error) {
	claim, err := svc.getClaim(ctx, claimID)
	if err != nil {
		return Claim{}, err
	}
	switch claim.Status {
	case StatusApproved:
		return claim, nil
	case StatusRejected:
		return Claim{}, core.NewValidationError(errors.Errorf("claim %q was rejected", claimID))
	}

	client, err := svc.provider.Client()
	if err != nil {
		return Claim{}, err
	}
	if err := client.ActivateClassSubscription(ctx, claim.StudentID, claim.ClassID); err != nil {
		activationFailuresTotal.Inc()
		if core.IsNotFound(err) {
			return Claim{}, err
		}
		return Claim{}, core.NewBackendError("activateClassSubscription", err)
	}

	approved, err := svc.store.UpdateStatus(ctx, claim.ID, StatusPending, StatusApproved)
	if err != nil {
		if errors.Cause(err) == ErrStatusChanged {
			// approved concurrently; activation is idempotent
			if current, gerr := svc.getClaim(ctx, claimID); gerr == nil && current.Status == StatusApproved {
				return current, nil
			}
		}
		return Claim{}, errors.Wrap(err, "updating claim")
	}
	claimsApprovedTotal.Inc()
	return approved, nil
}

func (svc *Service) getClaim(ctx context.Context, claimID string) (Claim, error) {
	claims, err := svc.store.Load(ctx)
	if err != nil {
		return Claim{}, errors.Wrap(err, "loading claims")
	}
	for _, c := range claims {
		if c.ID == claimID {
			return c, nil
		}
	}
	return Claim{}, core.NewNotFoundError("claim", claimID)
}

// HasAccess asks the backend only. Claims never grant access by themselves.
func (svc *Service) HasAccess(ctx context.Context, studentID, classID string) (bool, error) {
	client, err := svc.provider.Client()
	if err != nil {
		return false, err
	}
	ok, err := client.HasClassSubscription(ctx, studentID, classID)
	if err != nil {
		return false, core.NewBackendError("hasClassSubscription", err)
	}
	return ok, nil
}

// ActivateSubscription grants a student access to a class without a claim.
func (svc *Service) ActivateSubscription(ctx context.Context, studentID, classID string) error {
	client, err := svc.provider.Client()
	if err != nil {
		return err
	}
	if err := client.ActivateClassSubscription(ctx, studentID, classID); err != nil {
		activationFailuresTotal.Inc()
		if core.IsNotFound(err) {
			return err
		}
		return core.NewBackendError("activateClassSubscription", err)
	}
	return nil
}

// GetConfig returns nil when the class has no paywall configured.
func (svc *Service) GetConfig(ctx context.Context, classID string) (*backend.SubscriptionConfig, error) {
	client, err := svc.provider.Client()
	if err != nil {
		return nil, err
	}
	cfg, err := client.GetClassSubscriptionConfig(ctx, classID)
	if err != nil {
		return nil, core.NewBackendError("getClassSubscriptionConfig", err)
	}
	return cfg, nil
}

// SetConfig saves the paywall of a class. The price must be positive and a QR image must be given or already stored.
func (svc *Service) SetConfig(ctx context.Context, classID string, cu ConfigUpdate) (backend.SubscriptionConfig, error) {
	if cu.PriceSatoshis <= 0 {
		return backend.SubscriptionConfig{}, core.NewValidationError(nil, core.FieldError{Field: "price_satoshis", Error: "price must be greater than 0"})
	}

	current, err := svc.GetConfig(ctx, classID)
	if err != nil {
		return backend.SubscriptionConfig{}, err
	}
	qr := core.CleanString(cu.QRImage)
	if qr == "" && current != nil {
		qr = current.QRImage
	}
	if qr == "" {
		return backend.SubscriptionConfig{}, core.NewValidationError(nil, core.FieldError{Field: "qr_image", Error: "a payment QR image is required"})
	}

	cfg := backend.SubscriptionConfig{
		PriceSatoshis:  cu.PriceSatoshis,
		QRImage:        qr,
		PaywallEnabled: cu.PaywallEnabled,
	}
	client, err := svc.provider.Client()
	if err != nil {
		return backend.SubscriptionConfig{}, err
	}
	if err := client.SetClassSubscriptionConfig(ctx, classID, cfg); err != nil {
		if core.IsNotFound(err) {
			return backend.SubscriptionConfig{}, err
		}
		return backend.SubscriptionConfig{}, core.NewBackendError("setClassSubscriptionConfig", err)
	}
	return cfg, nil
}
