package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iho/tradebook/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	err := v.RegisterValidation("ulid_strict", func(fl validator.FieldLevel) bool {
		return domain.ValidateID(fl.Field().String()) == nil
	})
	if err != nil {
		panic(err)
	}
	return v
}

// checkFields runs the validate tags of req. The first failing field is
// wrapped in its entry of sentinels, keyed by JSON name and optionally
// "name.tag", falling back to fallback.
func checkFields(req any, sentinels map[string]error, fallback error) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", fallback, err)
	}

	fe := fieldErrs[0]
	field := strings.SplitN(fe.Field(), "[", 2)[0]

	sentinel := fallback
	if s, ok := sentinels[field+"."+fe.Tag()]; ok {
		sentinel = s
	} else if s, ok := sentinels[field]; ok {
		sentinel = s
	}

	if fe.Param() != "" {
		return fmt.Errorf("%w: %s fails %s=%s", sentinel, fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("%w: %s fails %s", sentinel, fe.Field(), fe.Tag())
}
