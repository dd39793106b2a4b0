package core

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/types"
)

type sampleRequest struct {
	VendorName   string `validate:"required,max=200"`
	ContactPhone string `validate:"omitempty,e164"`
	Currency     string `validate:"required,iso4217"`
	AmountCents  int64  `validate:"gt=0"`
}

func validSample() sampleRequest {
	return sampleRequest{
		VendorName:   "Acme Mills",
		ContactPhone: "+15551234567",
		Currency:     "USD",
		AmountCents:  100,
	}
}

func TestValidateStruct(t *testing.T) {
	v := NewValidator(slog.New(slog.DiscardHandler))

	require.NoError(t, v.ValidateStruct(validSample()))

	tests := []struct {
		name     string
		mutate   func(*sampleRequest)
		wantCode types.ErrorCode
		field    string
	}{
		{
			name:     "missing required",
			mutate:   func(r *sampleRequest) { r.VendorName = "" },
			wantCode: types.ErrCodeValidationMissingField,
			field:    "VendorName",
		},
		{
			name:     "bad phone",
			mutate:   func(r *sampleRequest) { r.ContactPhone = "555-1234" },
			wantCode: types.ErrCodeValidationInvalidPhone,
			field:    "ContactPhone",
		},
		{
			name:     "bad currency",
			mutate:   func(r *sampleRequest) { r.Currency = "DOLLARS" },
			wantCode: types.ErrCodeValidationInvalidCurrency,
			field:    "Currency",
		},
		{
			name:     "non-positive amount",
			mutate:   func(r *sampleRequest) { r.AmountCents = 0 },
			wantCode: types.ErrCodeValidationInvalidField,
			field:    "AmountCents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validSample()
			tt.mutate(&req)

			err := v.ValidateStruct(req)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}
