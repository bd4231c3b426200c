package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderTotalAmount(t *testing.T) {
	order := Order{Items: []OrderItem{
		{Price: decimal.NewFromInt(100), Count: 3, Additions: []AdditionItem{{Price: decimal.NewFromInt(20)}}},
		{Price: decimal.NewFromInt(40), Count: 1},
	}}
	assert.True(t, decimal.NewFromInt(400).Equal(order.TotalAmount()))
}

func TestIsPaymentRequired(t *testing.T) {
	assert.False(t, (&Order{PaymentMethod: PaymentCash}).IsPaymentRequired())
	assert.True(t, (&Order{PaymentMethod: PaymentCard, PrepaymentRequired: true}).IsPaymentRequired())
	assert.True(t, (&Order{PaymentMethod: PaymentLiqPay}).IsPaymentRequired())
}

func TestPaymentDescription(t *testing.T) {
	pre := OrderTransaction{OrderID: 7, Type: TransactionPrepayment}
	full := OrderTransaction{OrderID: 7, Type: TransactionFullPayment}

	assert.Equal(t, "Prepayment for order ID 7", pre.PaymentDescription())
	assert.Equal(t, "Payment for order ID 7", full.PaymentDescription())
}

func TestTransactionIsPaid(t *testing.T) {
	assert.True(t, (&OrderTransaction{Status: TransactionPaid}).IsPaid())
	assert.False(t, (&OrderTransaction{Status: TransactionNotPaid}).IsPaid())
}
