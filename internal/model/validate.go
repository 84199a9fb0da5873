package model

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`\S+@\S+\.(com|ru)`)
	phonePattern = regexp.MustCompile(`^\d{11}$`)
)

var validate = newValidator()

// FieldError describes one rejected form field.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		p, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
		return err == nil && p >= 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
	})
	_ = v.RegisterValidation("quantity", func(fl validator.FieldLevel) bool {
		q, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
		return err == nil && q >= 0
	})
	_ = v.RegisterValidation("provider_email", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) == "" || emailPattern.MatchString(s)
	})
	_ = v.RegisterValidation("provider_phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.TrimSpace(s) == "" || phonePattern.MatchString(s)
	})
	return v
}

// ValidateItemDetails checks the entry form. An empty result means the item
// may be saved.
func ValidateItemDetails(d ItemDetails) []FieldError {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Description: err.Error()}}
	}

	errs := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, FieldError{Field: fe.Field(), Description: describe(fe)})
	}
	return errs
}

// IsEntryValid reports whether the form passes validation.
func IsEntryValid(d ItemDetails) bool {
	return len(ValidateItemDetails(d)) == 0
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return fe.Field() + " is required"
	case "price":
		return "price must be a non-negative number"
	case "quantity":
		return "quantity must be a non-negative integer"
	case "provider_email":
		return "email must look like name@domain.com or name@domain.ru"
	case "provider_phone":
		return "phone must be 11 digits"
	default:
		return fe.Error()
	}
}
