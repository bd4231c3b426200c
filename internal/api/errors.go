package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"fscabinet/server/internal/services"
)

const nonFieldErrors = "non_field_errors"

// structValidator подключает к gin валидатор сервисов (теги binding)
type structValidator struct {
	v *validator.Validate
}

func (sv structValidator) ValidateStruct(obj interface{}) error {
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return sv.v.Struct(obj)
}

func (sv structValidator) Engine() interface{} {
	return sv.v
}

func init() {
	binding.Validator = structValidator{v: services.NewBindingValidator()}
}

func detail(code, description string) gin.H {
	return gin.H{"detail": gin.H{"code": code, "description": description}}
}

// respondError переводит ошибку сервиса в HTTP ответ
func respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	var de *services.DomainError

	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ve.Fields)
	case errors.As(err, &de):
		c.JSON(http.StatusBadRequest, detail(de.Code, de.Description))
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, detail("not_found", "Not found."))
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, detail("permission_denied", "You do not have permission to perform this action."))
	case errors.Is(err, services.ErrInvalidSignature):
		c.JSON(http.StatusForbidden, detail("invalid_signature", "Invalid signature."))
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, detail("invalid_credentials", "Invalid username or password."))
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("❌ Внутренняя ошибка")
		c.JSON(http.StatusInternalServerError, detail("server_error", "Internal server error."))
	}
}

// respondBindError - ошибка разбора тела запроса (тип поля, битый JSON, теги binding)
func respondBindError(c *gin.Context, err error) {
	out := &services.ValidationError{}

	var verrs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &verrs):
		respondError(c, services.TranslateValidation(verrs))
		return
	case errors.As(err, &typeErr) && typeErr.Field != "":
		out.Add(typeErr.Field, services.CodeInvalid, "Invalid value type.")
	default:
		out.Add(nonFieldErrors, "parse_error", "Malformed request body.")
	}
	c.JSON(http.StatusBadRequest, out.Fields)
}

// bindJSON разбирает тело запроса; пустое тело равно пустому объекту
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		if err := binding.Validator.ValidateStruct(dst); err != nil {
			respondBindError(c, err)
			return false
		}
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondBindError(c, err)
		return false
	}
	return true
}
