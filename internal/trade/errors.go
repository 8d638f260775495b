package trade

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrInvalidState   = errors.New("operation not allowed in current state")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("not a participant")
	ErrAuthentication = errors.New("authentication required")
	ErrNetwork        = errors.New("upstream unavailable")

	ErrDuplicateInterest = errors.New("interest already expressed")
	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrAlreadyApproved   = errors.New("already approved")
	ErrAlreadyRated      = errors.New("already rated")

	ErrNotReady     = errors.New("details not finalized")
	ErrNotSubmitted = errors.New("proof not submitted")
	ErrNotApproved  = errors.New("proofs not approved by both participants")
)

// IsInformational reports whether err means the action was already performed.
// Callers should refresh state rather than show a failure.
func IsInformational(err error) bool {
	return errors.Is(err, ErrDuplicateInterest) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrAlreadyRated)
}

// Code returns the stable wire code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAuthentication):
		return "unauthenticated"
	case errors.Is(err, ErrNetwork):
		return "upstream_unavailable"
	case errors.Is(err, ErrDuplicateInterest):
		return "duplicate_interest"
	case errors.Is(err, ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, ErrAlreadyApproved):
		return "already_approved"
	case errors.Is(err, ErrAlreadyRated):
		return "already_rated"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrNotSubmitted):
		return "not_submitted"
	case errors.Is(err, ErrNotApproved):
		return "not_approved"
	}
	return "internal"
}

// FromCode maps a wire code back to its sentinel. Unknown codes return nil.
func FromCode(code string) error {
	for _, e := range []error{
		ErrValidation, ErrInvalidState, ErrNotFound, ErrForbidden, ErrAuthentication,
		ErrNetwork, ErrDuplicateInterest, ErrAlreadySubmitted, ErrAlreadyApproved,
		ErrAlreadyRated, ErrNotReady, ErrNotSubmitted, ErrNotApproved,
	} {
		if Code(e) == code {
			return e
		}
	}
	return nil
}
