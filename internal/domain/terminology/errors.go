package terminology

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateCode = errors.New("duplicate code")
	ErrInvalidInput  = errors.New("invalid input")
)

// DuplicateCodeError reports a code that already exists in its kind's table.
type DuplicateCodeError struct {
	Kind Kind
	Code string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("%s code %q already exists", e.Kind, e.Code)
}

func (e *DuplicateCodeError) Is(target error) bool {
	return target == ErrDuplicateCode
}

func notFound(kind Kind, code string) error {
	return fmt.Errorf("%s code %q: %w", kind, code, ErrNotFound)
}

// BatchDuplicateError lists every code of a batch write that already
// exists. The batch is not written.
type BatchDuplicateError struct {
	Kind  Kind
	Codes []string
}

func (e *BatchDuplicateError) Error() string {
	return fmt.Sprintf("%s codes already exist: %s", e.Kind, strings.Join(e.Codes, ", "))
}

func (e *BatchDuplicateError) Is(target error) bool {
	return target == ErrDuplicateCode
}
