package api

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/apperr"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so clients see the field they sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var validationMessages = map[string]string{
	"required": "is required",
	"uuid":     "must be a valid UUID",
	"datetime": "must match %s",
	"oneof":    "must be one of %s",
	"gt":       "must be greater than %s",
	"lte":      "must be at most %s",
	"max":      "must be at most %s characters",
}

// validateStruct returns the first failing field as a *apperr.ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Invalid("body", "is invalid")
	}

	first := verrs[0]
	msg, ok := validationMessages[first.Tag()]
	if !ok {
		msg = "is invalid"
	}
	if strings.Contains(msg, "%s") {
		param := first.Param()
		if first.Tag() == "oneof" {
			param = strings.Join(strings.Fields(param), ", ")
		}
		msg = strings.Replace(msg, "%s", param, 1)
	}
	return &apperr.ValidationError{Field: first.Field(), Message: msg}
}

// Parsers for values the validator has already shape-checked.

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Invalid(field, "must be a valid UUID")
	}
	return id, nil
}

func parseOptionalID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := parseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDate(field, raw string) (time.Time, error) {
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

func parseClock(field, raw string) (calendar.Clock, error) {
	c, err := calendar.ParseClock(raw)
	if err != nil {
		return 0, apperr.Invalid(field, "must be a time in HH:MM format")
	}
	return c, nil
}
