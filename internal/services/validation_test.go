package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhoneNumberPattern(t *testing.T) {
	assert.True(t, PhoneNumberPattern.MatchString("+380991234567"))
	assert.False(t, PhoneNumberPattern.MatchString("380991234567"))
	assert.False(t, PhoneNumberPattern.MatchString("+38099123456"))
	assert.False(t, PhoneNumberPattern.MatchString("+3809912345678"))
	assert.False(t, PhoneNumberPattern.MatchString("+380-99-123-45-67"))
}

func TestValidateStructTranslatesErrors(t *testing.T) {
	req := CreateOrderRequest{
		DeliveryMethod: "TELEPORT",
		PaymentMethod:  "CASH",
		PhoneNumber:    "0991234567",
		PeoplesCount:   intPtr(40000),
	}

	err := validateStruct(req)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, CodeInvalidChoice, ve.Fields["delivery_method"][0].Code)
	assert.Equal(t, CodeRequired, ve.Fields["customer_name"][0].Code)
	assert.Equal(t, CodeInvalidPhoneNumber, ve.Fields["phone_number"][0].Code)
	assert.Equal(t, CodePositiveSmallIntOutside, ve.Fields["peoples_count"][0].Code)
	assert.NotContains(t, ve.Fields, "payment_method")
}

func TestValidateStructCourierRequiresAddress(t *testing.T) {
	req := CreateOrderRequest{
		DeliveryMethod: "COURIER",
		PaymentMethod:  "CARD",
		CustomerName:   "Іван",
		PhoneNumber:    "+380991234567",
	}

	err := validateStruct(req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	for _, field := range []string{"settlement", "street", "building_number"} {
		require.Contains(t, ve.Fields, field)
		assert.Equal(t, CodeRequired, ve.Fields[field][0].Code)
	}
	assert.NotContains(t, ve.Fields, "self_pickup_time")
}

func TestValidateStructSelfPickupRequiresTime(t *testing.T) {
	req := CreateOrderRequest{
		DeliveryMethod: "SELF_PICKUP",
		PaymentMethod:  "CARD",
		CustomerName:   "Іван",
		PhoneNumber:    "+380991234567",
	}

	err := validateStruct(req)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"self_pickup_time"}, keys(ve.Fields))
}

func TestValidationErrorMessage(t *testing.T) {
	ve := NewFieldError("b", CodeRequired, "x")
	ve.Add("a", CodeInvalid, "y")
	assert.Equal(t, "validation failed: a, b", ve.Error())
}

func keys(m map[string][]FieldError) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestBindingValidatorSharesRules(t *testing.T) {
	v := NewBindingValidator()

	type contactRequest struct {
		Phone  string `json:"phone" binding:"ua_phone"`
		Ignore string `json:"ignore" validate:"required"`
	}
	err := TranslateValidation(v.Struct(contactRequest{Phone: "0991234567"}))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, CodeInvalidPhoneNumber, ve.Fields["phone"][0].Code)
	assert.NotContains(t, ve.Fields, "ignore")

	assert.NoError(t, TranslateValidation(v.Struct(contactRequest{Phone: "+380991234567"})))
}

func TestUpdateSettingsRequestBounds(t *testing.T) {
	percent := 101
	minutes := -5
	err := TranslateValidation(NewBindingValidator().Struct(UpdateSettingsRequest{PrepaymentPercent: &percent, MinOrderCompletionMinutes: &minutes}))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, CodeMaxValue, ve.Fields["prepayment_percent"][0].Code)
	assert.Equal(t, CodeMinValue, ve.Fields["min_order_completion_time"][0].Code)
}
