// Package liqpay - клиент платежного шлюза LiqPay: форма оплаты (checkout) и проверка коллбеков.
package liqpay

import (
	"bytes"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	// CheckoutURL - адрес, на который отправляется форма оплаты
	CheckoutURL = "https://www.liqpay.ua/api/3/checkout"

	apiVersion      = "3"
	actionPay       = "pay"
	defaultCurrency = "UAH"
	defaultLanguage = "uk"

	// StatusSuccess - статус успешного платежа в коллбеке
	StatusSuccess = "success"
)

var (
	ErrInvalidBase64  = errors.New("liqpay: invalid base64 data")
	ErrInvalidPayload = errors.New("liqpay: invalid json payload")
)

// Client подписывает формы и проверяет коллбеки парой ключей магазина
type Client struct {
	publicKey  string
	privateKey string
}

// NewClient создает клиента LiqPay
func NewClient(publicKey, privateKey string) *Client {
	return &Client{publicKey: publicKey, privateKey: privateKey}
}

// FormParams - параметры платежа
type FormParams struct {
	Amount      decimal.Decimal
	Currency    string
	OrderID     uint
	Description string
	ResultURL   string // куда вернуть покупателя после оплаты
	ServerURL   string // куда LiqPay отправит коллбек
}

// Form - данные для HTML-формы оплаты (поля data и signature отправляются POST на Action)
type Form struct {
	Action    string
	Data      string
	Signature string
}

type checkoutRequest struct {
	PublicKey   string `json:"public_key"`
	Version     string `json:"version"`
	Action      string `json:"action"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	OrderID     string `json:"order_id"`
	Language    string `json:"language"`
	ResultURL   string `json:"result_url,omitempty"`
	ServerURL   string `json:"server_url,omitempty"`
}

// CheckoutForm собирает подписанную форму оплаты
func (c *Client) CheckoutForm(p FormParams) (Form, error) {
	currency := p.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	payload, err := json.Marshal(checkoutRequest{
		PublicKey:   c.publicKey,
		Version:     apiVersion,
		Action:      actionPay,
		Amount:      p.Amount.String(),
		Currency:    currency,
		Description: p.Description,
		OrderID:     strconv.FormatUint(uint64(p.OrderID), 10),
		Language:    defaultLanguage,
		ResultURL:   p.ResultURL,
		ServerURL:   p.ServerURL,
	})
	if err != nil {
		return Form{}, fmt.Errorf("failed to encode checkout data: %w", err)
	}

	data := base64.StdEncoding.EncodeToString(payload)
	return Form{
		Action:    CheckoutURL,
		Data:      data,
		Signature: c.Sign(data),
	}, nil
}

// Sign считает подпись: base64(sha1(private_key + data + private_key))
func (c *Client) Sign(data string) string {
	sum := sha1.Sum([]byte(c.privateKey + data + c.privateKey))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Verify проверяет подпись коллбека
func (c *Client) Verify(data, signature string) bool {
	expected := c.Sign(data)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// Callback - разобранный коллбек LiqPay. Raw содержит все поля как есть.
type Callback struct {
	Status         string
	OrderID        string
	ErrCode        string
	ErrDescription string
	Raw            map[string]interface{}
}

// IsSuccess - платеж завершен успешно
func (cb Callback) IsSuccess() bool {
	return cb.Status == StatusSuccess
}

// Field возвращает значение поля коллбека или nil
func (cb Callback) Field(name string) interface{} {
	if cb.Raw == nil {
		return nil
	}
	return cb.Raw[name]
}

// DecodeCallback декодирует поле data коллбека (base64 -> JSON)
func DecodeCallback(data string) (Callback, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if fields == nil {
		return Callback{}, ErrInvalidPayload
	}

	return Callback{
		Status:         stringField(fields, "status"),
		OrderID:        stringField(fields, "order_id"),
		ErrCode:        stringField(fields, "err_code"),
		ErrDescription: stringField(fields, "err_description"),
		Raw:            fields,
	}, nil
}

// stringField приводит поле к строке: LiqPay присылает order_id как строкой, так и числом
func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
