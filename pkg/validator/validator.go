package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
	ValidateField(field string, value interface{}, rules ...string) error
}

type validator struct {
	v *playground.Validate
}

func New() Validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &validator{v: v}
}

// Validate checks obj's `validate` tags and reports the first failing field
// in plain words.
func (v *validator) Validate(obj interface{}) error {
	return describe(v.v.Struct(obj), "")
}

func (v *validator) ValidateField(field string, value interface{}, rules ...string) error {
	return describe(v.v.Var(value, strings.Join(rules, ",")), field)
}

func describe(err error, field string) error {
	if err == nil {
		return nil
	}
	var verrs playground.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := field
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", name, fe.Param())
	case "max":
		return fmt.Errorf("%s must not exceed %s characters", name, fe.Param())
	case "min":
		return fmt.Errorf("%s must be at least %s characters long", name, fe.Param())
	case "email":
		return fmt.Errorf("%s must be a valid email", name)
	}
	return fmt.Errorf("%s failed %s validation", name, fe.Tag())
}
