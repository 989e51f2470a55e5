package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names in validation messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateLines, createOrderRequest{})
	return v
}

// validateLines rejects payloads with an absurd number of lines before any
// row gets locked.
func validateLines(sl validator.StructLevel) {
	req := sl.Current().Interface().(createOrderRequest)
	if len(req.Products) > maxOrderLines {
		sl.ReportError(req.Products, "products", "Products", "max_lines", fmt.Sprint(maxOrderLines))
	}
}

// validationMessage turns the first validation failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return msgMissingFields
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return msgMissingFields
	case "max":
		return fmt.Sprintf("Field %s must be at most %s characters", fe.Field(), fe.Param())
	case "max_lines":
		return fmt.Sprintf("At most %s products per order", fe.Param())
	default:
		return fmt.Sprintf("Invalid field %s", fe.Field())
	}
}
