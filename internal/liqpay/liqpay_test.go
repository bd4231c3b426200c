package liqpay

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestSignMatchesLiqPayAlgorithm(t *testing.T) {
	c := NewClient("public", "private")

	sum := sha1.Sum([]byte("private" + "abc" + "private"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), c.Sign("abc"))
}

func TestCheckoutForm(t *testing.T) {
	c := NewClient("pub_key", "priv_key")

	form, err := c.CheckoutForm(FormParams{
		Amount:      decimal.NewFromInt(100),
		OrderID:     42,
		Description: "Prepayment for order ID 42",
		ResultURL:   "http://shop/",
		ServerURL:   "http://shop/api/v1/order/payment/confirm/",
	})
	require.NoError(t, err)

	assert.Equal(t, CheckoutURL, form.Action)
	assert.True(t, c.Verify(form.Data, form.Signature))

	raw, err := base64.StdEncoding.DecodeString(form.Data)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, map[string]string{
		"public_key":  "pub_key",
		"version":     "3",
		"action":      "pay",
		"amount":      "100",
		"currency":    "UAH",
		"description": "Prepayment for order ID 42",
		"order_id":    "42",
		"language":    "uk",
		"result_url":  "http://shop/",
		"server_url":  "http://shop/api/v1/order/payment/confirm/",
	}, payload)
}

func TestCheckoutFormOmitsEmptyURLs(t *testing.T) {
	c := NewClient("pub_key", "priv_key")

	form, err := c.CheckoutForm(FormParams{Amount: decimal.NewFromInt(5), OrderID: 1, Currency: "USD"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(form.Data)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.NotContains(t, payload, "result_url")
	assert.NotContains(t, payload, "server_url")
	assert.Equal(t, "USD", payload["currency"])
}

func TestVerify(t *testing.T) {
	c := NewClient("public", "private")
	data := encode(t, map[string]string{"status": "success"})

	assert.True(t, c.Verify(data, c.Sign(data)))
	assert.False(t, c.Verify(data, "forged"))
	assert.False(t, c.Verify(data, NewClient("public", "other").Sign(data)))
}

func TestDecodeCallback(t *testing.T) {
	data := encode(t, map[string]interface{}{
		"status":     "success",
		"order_id":   "15",
		"payment_id": 123456,
		"paytype":    "card",
	})

	cb, err := DecodeCallback(data)
	require.NoError(t, err)
	assert.True(t, cb.IsSuccess())
	assert.Equal(t, "15", cb.OrderID)
	assert.Equal(t, json.Number("123456"), cb.Field("payment_id"))
	assert.Equal(t, "card", cb.Field("paytype"))
	assert.Nil(t, cb.Field("token"))
}

func TestDecodeCallbackNumericOrderID(t *testing.T) {
	cb, err := DecodeCallback(encode(t, map[string]interface{}{
		"status":          "failure",
		"order_id":        15,
		"err_code":        "limit",
		"err_description": "Limit exceeded",
	}))
	require.NoError(t, err)
	assert.False(t, cb.IsSuccess())
	assert.Equal(t, "15", cb.OrderID)
	assert.Equal(t, "limit", cb.ErrCode)
	assert.Equal(t, "Limit exceeded", cb.ErrDescription)
}

func TestDecodeCallbackErrors(t *testing.T) {
	_, err := DecodeCallback("%%% not base64 %%%")
	assert.ErrorIs(t, err, ErrInvalidBase64)

	_, err = DecodeCallback(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DecodeCallback(base64.StdEncoding.EncodeToString([]byte("null")))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
