package ops

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/tracker"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// inputValidator returns the shared validator with the tracker rules
// registered.
func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			if name := fld.Tag.Get("name"); name != "" {
				return name
			}
			return strings.ToLower(fld.Name)
		})
		mustRegister(v, "trigger", func(fl validator.FieldLevel) bool {
			_, err := tracker.ParseTrigger(fl.Field().String())
			return err == nil
		})
		mustRegister(v, "strategy", func(fl validator.FieldLevel) bool {
			_, ok := tracker.LookupStrategy(fl.Field().String())
			return ok
		})
		mustRegister(v, "moodicon", func(fl validator.FieldLevel) bool {
			return slices.Contains(tracker.MoodIcons, fl.Field().String())
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// validateInput checks struct tags on in and converts failures to an
// INVALID_REQUEST error naming every offending field.
func validateInput(in any) error {
	err := inputValidator().Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.NewInternal(err)
	}

	fields := make(map[string]any, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := describe(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, fe.Field()+" "+msg)
	}
	e := errors.NewInvalidRequest(strings.Join(msgs, "; "))
	e.Details = map[string]any{"fields": fields}
	return e
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return "must be at most " + fe.Param() + " characters"
		}
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "hexcolor":
		return "must be a hex color"
	case "trigger":
		return fmt.Sprintf("has unknown trigger %q", fe.Value())
	case "strategy":
		return fmt.Sprintf("has unknown strategy %q", fe.Value())
	case "moodicon":
		return fmt.Sprintf("has unknown mood icon %q", fe.Value())
	default:
		return "failed " + fe.Tag() + " check"
	}
}
