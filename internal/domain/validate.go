package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct checks validate tags on v and reports the first failing
// field as a *ValidationError.
func ValidateStruct(v interface{}) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}

	fe := errs[0]
	message := fe.Error()
	switch fe.Tag() {
	case "required":
		message = fmt.Sprintf("%s is required", fe.Field())
	case "min":
		message = fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		message = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		message = fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "url", "startswith":
		message = fmt.Sprintf("%s must be an http(s) URL", fe.Field())
	case "oneof":
		message = fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return NewValidationError(fe.Field(), message)
}
