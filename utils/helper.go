package utils

import (
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

func UniqueSlice[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ProcessValidationErrors flattens binding validation failures into a
// field -> failed-tag map for API responses.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

var periodIdPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// IsValidPeriodId reports whether a period id is a YYYY-MM string.
func IsValidPeriodId(periodId string) bool {
	return periodIdPattern.MatchString(periodId)
}

// PreviousPeriodId returns the YYYY-MM immediately before periodId.
// The second return is false when periodId is malformed.
func PreviousPeriodId(periodId string) (string, bool) {
	if !IsValidPeriodId(periodId) {
		return "", false
	}
	t, err := time.Parse("2006-01", periodId)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, -1, 0).Format("2006-01"), true
}
