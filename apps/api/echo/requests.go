package echoapi

import (
	"github.com/go-playground/validator/v10"
)

type (
	ProfileRequest struct {
		Name string `json:"name" validate:"notblank"`
		Role string `json:"role" validate:"required,oneof=student teacher"`
	}

	ProgressRequest struct {
		Completed bool `json:"completed"`
	}

	ClaimRequest struct {
		Reference string `json:"reference" validate:"notblank"`
	}

	SubscriptionConfigRequest struct {
		PaywallEnabled bool   `json:"paywall_enabled"`
		PriceSatoshis  int64  `json:"price_satoshis" validate:"gt=0"`
		QRImage        string `json:"qr_image"`
	}

	ActivateRequest struct {
		StudentID string `json:"student_id" validate:"notblank"`
	}
)

func (r ProfileRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r ClaimRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r SubscriptionConfigRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r ActivateRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}
