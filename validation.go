package main

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message" validate:"required,min=1,max=1000"`
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// ClearHistoryRequest is the body of POST /api/chat/clear.
type ClearHistoryRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// StatusUpdateRequest is the body of PATCH /api/contact/{id}.
type StatusUpdateRequest struct {
	Status ContactStatus `json:"status" validate:"required"`
}

// InputValidator checks request structs against their validate tags and
// turns the first violation into a ValidationError.
type InputValidator struct {
	v *validator.Validate
}

func NewInputValidator() *InputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &InputValidator{v: v}
}

// Struct validates s. Non-validation failures are returned wrapped.
func (iv *InputValidator) Struct(s any) error {
	err := iv.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, "validate input")
	}
	return describeFieldError(verrs[0])
}

func describeFieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return newValidationError(field, "%q is required", field)
	case "email":
		return newValidationError(field, "%q must be a valid email", field)
	case "min":
		return newValidationError(field, "%q length must be at least %s characters long", field, fe.Param())
	case "max":
		return newValidationError(field, "%q length must be less than or equal to %s characters long", field, fe.Param())
	}
	return newValidationError(field, "%q is invalid", field)
}

// ValidateContact trims and validates a contact form.
func (iv *InputValidator) ValidateContact(in *ContactInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)
	return iv.Struct(in)
}

// ValidateStatus checks a status change requested by an admin.
func ValidateStatus(status ContactStatus) error {
	if !status.Valid() {
		return newValidationError("status", "%q must be one of [unread, read, responded, archived]", "status")
	}
	return nil
}
