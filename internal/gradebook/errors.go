package gradebook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrLevelNotFound = errors.New("level not found")
	ErrInvalidLevel  = errors.New("invalid level")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
)

// ValidationError is a user-correctable rejection of a request.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a *ValidationError or a *BatchError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var be *BatchError
	return errors.As(err, &ve) || errors.As(err, &be)
}

// BatchError collects per-entry failures of an all-or-nothing batch.
type BatchError struct {
	Entries map[int]error
}

func (e *BatchError) Error() string {
	idx := make([]int, 0, len(e.Entries))
	for i := range e.Entries {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		parts = append(parts, fmt.Sprintf("#%d: %v", i, e.Entries[i]))
	}
	return "batch rejected: " + strings.Join(parts, "; ")
}
