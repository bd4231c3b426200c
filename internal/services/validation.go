package services

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// PhoneNumberPattern - формат украинского мобильного номера
var PhoneNumberPattern = regexp.MustCompile(`^\+380\d{9}$`)

// Коды ошибок валидации полей
const (
	CodeRequired                = "required"
	CodeInvalid                 = "invalid"
	CodeInvalidChoice           = "invalid_choice"
	CodeMaxLength               = "max_length"
	CodeMinLength               = "min_length"
	CodeMinValue                = "min_value"
	CodeMaxValue                = "max_value"
	CodeInvalidPhoneNumber      = "invalid_phone_number_format"
	CodePositiveSmallIntOutside = "peoples_count_range_from_0_to_32767"
)

// FieldError - одна ошибка поля
type FieldError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ValidationError - ошибки по полям запроса (HTTP 400, {"field": [{code, description}]})
type ValidationError struct {
	Fields map[string][]FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// Add добавляет ошибку поля
func (e *ValidationError) Add(field, code, description string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]FieldError)
	}
	e.Fields[field] = append(e.Fields[field], FieldError{Code: code, Description: description})
}

// NewFieldError - ошибка валидации одного поля
func NewFieldError(field, code, description string) *ValidationError {
	ve := &ValidationError{}
	ve.Add(field, code, description)
	return ve
}

// Теги правил: сервисы проверяют validate, gin при разборе тела проверяет binding
const (
	serviceTag = "validate"
	bindingTag = "binding"
)

var validate = newValidator(serviceTag)

func newValidator(tagName string) *validator.Validate {
	v := validator.New()
	v.SetTagName(tagName)

	// В ошибках поля называются так же, как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("ua_phone", func(fl validator.FieldLevel) bool {
		return PhoneNumberPattern.MatchString(fl.Field().String())
	})

	return v
}

// NewBindingValidator - валидатор для тегов binding с теми же именами полей и правилами, что у сервисов
func NewBindingValidator() *validator.Validate {
	return newValidator(bindingTag)
}

// validateStruct проверяет структуру и переводит ошибки валидатора в ValidationError
func validateStruct(s interface{}) error {
	return TranslateValidation(validate.Struct(s))
}

// TranslateValidation переводит ошибки валидатора в ValidationError, остальные ошибки возвращает как есть
func TranslateValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		code, description := describeFieldError(fe)
		out.Add(fe.Field(), code, description)
	}
	return out
}

func describeFieldError(fe validator.FieldError) (string, string) {
	switch fe.Tag() {
	case "required", "required_if":
		return CodeRequired, "This field is required."
	case "oneof":
		return CodeInvalidChoice, fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	case "ua_phone":
		return CodeInvalidPhoneNumber, `Phone number has to be in "+380999999999" format.`
	case "email":
		return CodeInvalid, "Enter a valid email address."
	case "min", "max", "gte", "lte":
		isMin := fe.Tag() == "min" || fe.Tag() == "gte"
		if fe.Kind() == reflect.String {
			if isMin {
				return CodeMinLength, fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
			}
			return CodeMaxLength, fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
		}
		// min/max на числах описывают smallint (количество, число персон), прочие границы задаются gte/lte
		if fe.Tag() == "min" || fe.Tag() == "max" {
			return CodePositiveSmallIntOutside, "Value must be in range from 0 to 32767."
		}
		if isMin {
			return CodeMinValue, fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
		}
		return CodeMaxValue, fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	}
	return CodeInvalid, "Invalid value."
}
