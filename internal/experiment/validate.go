package experiment

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var devicePattern = regexp.MustCompile(`^(cpu|cuda(:[0-9]+)?)$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("device", func(fl validator.FieldLevel) bool {
		return devicePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks that every field of params holds a legal value. All violations
// are reported in a single error wrapping ErrInvalidParams.
func Validate(params Params) error {
	err := validate.Struct(params)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(messages, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("value of `%s` must be one of [%s], but the current value is %v",
			fe.Field(), strings.ReplaceAll(fe.Param(), " ", ","), fe.Value())
	case "required", "required_if", "required_with":
		return fmt.Sprintf("value of `%s` must be set", fe.Field())
	case "gt":
		return fmt.Sprintf("value of `%s` must be greater than %s, but the current value is %v", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("value of `%s` must not be less than %s, but the current value is %v", fe.Field(), fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("value of `%s` must be less than %s, but the current value is %v", fe.Field(), fe.Param(), fe.Value())
	case "device":
		return fmt.Sprintf("value of `%s` must be cpu, cuda or cuda:N, but the current value is %q", fe.Field(), fe.Value())
	default:
		return fmt.Sprintf("value of `%s` failed %s validation", fe.Field(), fe.Tag())
	}
}
