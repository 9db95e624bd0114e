// Package validation checks request structs against their `validate` tags.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"poscore/backend/internal/domain"
)

type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(v, "dpos", decimalRule(func(d decimal.Decimal, _ string) bool { return d.IsPositive() }))
	mustRegister(v, "dgte0", decimalRule(func(d decimal.Decimal, _ string) bool { return !d.IsNegative() }))
	mustRegister(v, "dscale", decimalRule(withinScale))

	return &Validator{v: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// decimalRule adapts a decimal predicate to a validator func. Fields that are
// not decimals fail.
func decimalRule(ok func(d decimal.Decimal, param string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		switch d := fl.Field().Interface().(type) {
		case decimal.Decimal:
			return ok(d, fl.Param())
		case *decimal.Decimal:
			return d == nil || ok(*d, fl.Param())
		}
		return false
	}
}

// withinScale accepts values with at most param decimal places. Trailing
// zeros do not count.
func withinScale(d decimal.Decimal, param string) bool {
	places, err := strconv.ParseInt(param, 10, 32)
	if err != nil || places < 0 {
		return false
	}
	return d.Round(int32(places)).Equal(d)
}

// Struct returns a domain validation error naming the first offending field.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Internal(err)
	}
	fe := fieldErrs[0]
	return domain.Validation("%s %s", fieldPath(fe.Namespace()), describe(fe))
}

func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "dpos":
		return "must be greater than zero"
	case "dgte0":
		return "must not be negative"
	case "dscale":
		return fmt.Sprintf("must have at most %s decimal places", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s long", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}
