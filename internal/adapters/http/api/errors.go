package api

import (
	"errors"
	"net/http"

	"github.com/okian/jury/internal/adapters/repository"
	"github.com/okian/jury/internal/domain/assignment"
	"github.com/okian/jury/internal/domain/flagging"
	"github.com/okian/jury/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrMissingJudge = errors.New("missing X-Judge-ID header")
	ErrRateLimited  = errors.New("rate limited")
)

// OpError annotates an error with the handler operation that produced it.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error { return &OpError{Op: op, Kind: kind} }

// Wrap annotates err with op.
func Wrap(op string, err error) error { return &OpError{Op: op, Err: err} }

// WrapKind annotates err with op and classifies it as kind.
func WrapKind(op string, kind, err error) error { return &OpError{Op: op, Kind: kind, Err: err} }

// statusOf maps engine errors to an HTTP status and a stable client code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMissingJudge):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, assignment.ErrNoEligibleProjects):
		return http.StatusNotFound, "no_eligible_projects"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, assignment.ErrWindowClosed):
		return http.StatusLocked, "window_closed"
	case errors.Is(err, assignment.ErrNotAssigned):
		return http.StatusConflict, "not_assigned"
	case errors.Is(err, assignment.ErrNoPreviousProject):
		return http.StatusConflict, "no_previous_project"
	case errors.Is(err, assignment.ErrVoteRequired):
		return http.StatusConflict, "vote_required"
	case errors.Is(err, assignment.ErrInvalidGroup):
		return http.StatusBadRequest, "invalid_group"
	case errors.Is(err, assignment.ErrInvalidChoice):
		return http.StatusBadRequest, "invalid_choice"
	case errors.Is(err, flagging.ErrInvalidReason), errors.Is(err, model.ErrUnknownFlagReason):
		return http.StatusBadRequest, "invalid_reason"
	case errors.Is(err, assignment.ErrInvalidStars):
		return http.StatusBadRequest, "invalid_stars"
	case errors.Is(err, assignment.ErrNotSeen):
		return http.StatusConflict, "not_seen"
	case errors.Is(err, assignment.ErrJudgeInactive):
		return http.StatusForbidden, "judge_inactive"
	case errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal_error"
}
