package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct runs the validate tags of s and converts the first failure
// into a user-facing error with a suggestion.
func ValidateStruct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return fieldError(verrs[0])
}

func fieldError(fe validator.FieldError) error {
	switch fe.Field() {
	case "Title":
		return ErrEmptyTitle()
	case "Urgency":
		return ErrInvalidUrgency(intValue(fe.Value()))
	case "Difficulty":
		return ErrInvalidDifficulty(intValue(fe.Value()))
	}
	return WrapWithSuggestion(
		fmt.Errorf("invalid value for %s: failed '%s' check", fe.Namespace(), fe.Tag()),
		fmt.Sprintf("Check the value given for %s", strings.ToLower(fe.Field())),
	)
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case *int:
		if n != nil {
			return *n
		}
	}
	return 0
}

// ParseDateFlag parses a date string in ISO format (YYYY-MM-DD) as local
// midnight. Returns nil for empty strings (used to clear dates).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	if dateStr == "" {
		return nil, nil
	}

	parsedDate, err := time.ParseInLocation(ISODate, dateStr, time.Local)
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}

	return &parsedDate, nil
}
