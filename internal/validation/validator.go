// Package validation wraps a shared go-playground/validator instance with the
// custom rules used by uchat.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var emailRegex = regexp.MustCompile(`^\S+@\S+\.\S{1,64}$`)

// FieldError is a single failed rule.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s failed %s=%s", e.Field, e.Tag, e.Param)
	}
	return fmt.Sprintf("%s failed %s", e.Field, e.Tag)
}

// Errors is returned by Struct when one or more fields are invalid.
type Errors []FieldError

func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Get returns the singleton validator.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// "uchat_email" is looser than the builtin email rule and matches what
		// the web client checks before submitting.
		_ = validate.RegisterValidation("uchat_email", func(fl validator.FieldLevel) bool {
			return emailRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s and converts failures to Errors.
func Struct(s any) error {
	return convert(Get().Struct(s))
}

// Var validates a single value against tag. The first failing rule is
// returned as a FieldError named after field.
func Var(field string, v any, tag string) error {
	err := Get().Var(v, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return FieldError{Field: field, Tag: verrs[0].Tag(), Param: verrs[0].Param()}
	}
	return err
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Namespace(), Tag: fe.Tag(), Param: fe.Param()})
	}
	return out
}
