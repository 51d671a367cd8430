package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/bioview/internal/ebi"
	"github.com/jonathan/bioview/internal/fetch"
	"github.com/jonathan/bioview/internal/phylogeny"
	"github.com/jonathan/bioview/internal/structure"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation   *ErrValidation
		seqErr       *phylogeny.ValidationError
		tokenErr     *phylogeny.TokenError
		submission   *ebi.SubmissionError
		invalidID    *structure.InvalidIDError
		notFound     *structure.NotFoundError
		upstream     *structure.UpstreamError
		statusErr    *ebi.StatusError
		resultErr    *ebi.ResultError
		transportErr *fetch.Error
	)

	switch {
	case errors.As(err, &validation), errors.As(err, &seqErr), errors.As(err, &tokenErr), errors.As(err, &invalidID):
		return http.StatusBadRequest
	case errors.As(err, &submission):
		if submission.Rejected() {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &upstream), errors.As(err, &statusErr), errors.As(err, &resultErr):
		return http.StatusBadGateway
	case errors.As(err, &transportErr):
		if transportErr.Kind == fetch.KindCanceled {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is what a client sees for err. Transport details stay in the log.
func errorMessage(err error) string {
	var transportErr *fetch.Error
	if errors.As(err, &transportErr) {
		return fmt.Sprintf("remote service unreachable (%s)", transportErr.Kind)
	}
	return err.Error()
}
