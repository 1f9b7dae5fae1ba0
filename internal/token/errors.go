package token

import "errors"

// Reason tags why a token was rejected.
type Reason string

const (
	ReasonMalformed    Reason = "malformed"
	ReasonBadSignature Reason = "bad_signature"
	ReasonWrongType    Reason = "wrong_type"
	ReasonExpired      Reason = "expired"
)

// String returns the message shown to whoever followed the link.
func (r Reason) String() string {
	switch r {
	case ReasonMalformed:
		return "the link is malformed"
	case ReasonBadSignature:
		return "the link signature is invalid"
	case ReasonWrongType:
		return "the link cannot be used for this action"
	case ReasonExpired:
		return "the link has expired"
	default:
		return string(r)
	}
}

// VerificationError is returned for every rejected token.
type VerificationError struct {
	Reason Reason
	Err    error
}

func newVerificationError(reason Reason, err error) *VerificationError {
	return &VerificationError{Reason: reason, Err: err}
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return "token " + string(e.Reason)
	}
	return "token " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the verification reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return verr.Reason, true
	}
	return "", false
}
