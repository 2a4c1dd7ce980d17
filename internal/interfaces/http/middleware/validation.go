package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/erp/shopsync/internal/domain/integration"
	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

// SetupValidator names fields after their JSON keys in validation errors
// and registers the store specific tags:
//
//	shopdomain  a shop handle, myshopify domain or shop URL
//	apiversion  an Admin API version such as 2024-01
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	registerSyncValidations(v)
}

func registerSyncValidations(v *validator.Validate) {
	_ = v.RegisterValidation("shopdomain", func(fl validator.FieldLevel) bool {
		_, err := integration.NormalizeShopURL(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("apiversion", func(fl validator.FieldLevel) bool {
		return integration.ValidAPIVersion(fl.Field().String())
	})
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 validation error response
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, getRequestID(c)))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "url":
		return "Invalid URL format"
	case "numeric":
		return "Must be numeric"
	case "shopdomain":
		return "Must be a shop name, a myshopify.com domain or a shop URL"
	case "apiversion":
		return "Must be an API version such as " + integration.DefaultAPIVersion
	default:
		return "Invalid value"
	}
}
