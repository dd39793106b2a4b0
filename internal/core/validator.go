package core

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"opsdeck/internal/types"
)

// Validator wraps go-playground/validator with the error mapping used by all
// handlers: struct tag violations become 400 AppErrors with per-field detail.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. The builtin e164 and iso4217 tags cover
// phone and currency validation, so no custom tags are registered.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its tags. The first
// violation determines the error code; every violation appears in the
// details map as field -> failed rule.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		// InvalidValidationError: the caller passed something that is not a
		// struct. That is a programming error, not client input.
		v.logger.Error("validator received non-struct value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fieldPath(fe)] = rule
	}

	first := verrs[0]
	return types.NewAppErrorWithDetails(
		codeForTag(first.Tag()),
		"validation failed for field "+fieldPath(first),
		nil,
		details,
	)
}

// codeForTag picks the most specific error code for a failed validation tag.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_with", "required_without":
		return types.ErrCodeValidationMissingField
	case "e164":
		return types.ErrCodeValidationInvalidPhone
	case "iso4217":
		return types.ErrCodeValidationInvalidCurrency
	default:
		return types.ErrCodeValidationInvalidField
	}
}

// fieldPath renders the struct namespace without the leading type name, e.g.
// "Items[0].SKU" instead of "CreateOrderRequest.Items[0].SKU".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
