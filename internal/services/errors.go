package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound - запись не найдена или принадлежит другой сессии (HTTP 404)
	ErrNotFound = errors.New("not found")
	// ErrForbidden - действие запрещено для вызывающего (HTTP 403)
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidSignature - подпись коллбека платежного шлюза не сошлась (HTTP 403)
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidCredentials - неверный логин или пароль сотрудника (HTTP 401)
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Коды доменных ошибок
const (
	CodeCartNotFound                    = "cart_not_found"
	CodeCartEmpty                       = "cart_empty"
	CodeMenuItemOrderNotAllowed         = "menu_item_order_not_allowed"
	CodeMenuItemOrderNotAllowedThisTime = "menu_item_order_not_allowed_at_this_time"
	CodeCannotBeRejected                = "cannot_be_rejected"
	CodeInvalidBase64String             = "invalid_base64_string"
	CodeAdditionNotAllowed              = "addition_not_allowed"
	CodeSelfPickupTimeTooEarly          = "self_pickup_time_too_early"
	CodeInvalidPayload                  = "invalid_payload"
)

var domainDescriptions = map[string]string{
	CodeCartNotFound:                    "Cart not found.",
	CodeCartEmpty:                       "Cart is empty.",
	CodeMenuItemOrderNotAllowed:         "This menu item cannot be ordered.",
	CodeMenuItemOrderNotAllowedThisTime: "This menu item cannot be ordered at this time.",
	CodeCannotBeRejected:                "Paid order cannot be rejected.",
	CodeInvalidBase64String:             "Invalid base64 string.",
	CodeAdditionNotAllowed:              "Addition is not allowed for this menu item.",
	CodeSelfPickupTimeTooEarly:          "Self-pickup time is too early.",
	CodeInvalidPayload:                  "Invalid payload.",
}

// DomainError - нарушение бизнес-правила с машинным кодом (HTTP 400, {"detail": {code, description}})
type DomainError struct {
	Code        string
	Description string
}

// NewDomainError создает доменную ошибку со стандартным описанием кода
func NewDomainError(code string) *DomainError {
	return &DomainError{Code: code, Description: domainDescriptions[code]}
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain error: %s", e.Code)
}

// IsDomainError проверяет, что err - доменная ошибка с кодом code
func IsDomainError(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
