package phylogeny

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/bioview/internal/fetch"
)

// ValidationError is a caller input problem detected before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// TokenError is a pipeline token that decoded but lacks what its stage needs.
type TokenError struct {
	Token  string
	Reason string
}

func (e *TokenError) Error() string {
	return "malformed pipeline token: " + e.Reason
}

// fromValidator converts validator output on the sequence list into a ValidationError.
func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "sequences", Message: err.Error()}
	}

	fe := fieldErrs[0]
	if fe.Kind() == reflect.String {
		switch fe.Tag() {
		case "max":
			return &ValidationError{Field: "sequences", Message: fmt.Sprintf("each sequence must be at most %s residues", fe.Param())}
		default:
			return &ValidationError{Field: "sequences", Message: "sequences must not be blank"}
		}
	}

	switch fe.Tag() {
	case "required", "min":
		return &ValidationError{Field: "sequences", Message: fmt.Sprintf("at least %s non-blank sequences are required", minSequencesParam(fe))}
	case "max":
		return &ValidationError{Field: "sequences", Message: fmt.Sprintf("at most %s sequences can be submitted", fe.Param())}
	}
	return &ValidationError{Field: "sequences", Message: fe.Error()}
}

func minSequencesParam(fe validator.FieldError) string {
	if fe.Tag() == "min" {
		return fe.Param()
	}
	return fmt.Sprint(MinSequences)
}

// failureMessage renders an error for a FAILURE envelope. Transport failures get a
// generic message since the remote job itself may be fine.
func failureMessage(err error) string {
	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		return fmt.Sprintf("remote service unreachable (%s after %d attempt(s))", fetchErr.Kind, fetchErr.Attempts)
	}
	return err.Error()
}
