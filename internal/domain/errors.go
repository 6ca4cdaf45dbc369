package domain

import "errors"

var (
	ErrInvalidOrExpiredToken = errors.New("invalid or expired invitation")
	ErrOTPMismatchOrExpired  = errors.New("verification code is invalid or expired")
	ErrSignerNotFound        = errors.New("not a signer of this document")
	ErrAlreadySigned         = errors.New("already signed")
	ErrTransientStorage      = errors.New("transient storage failure")
	ErrStateConflict         = errors.New("state conflict")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrNotFound              = errors.New("not found")
	ErrInvalidArtifact       = errors.New("invalid signature image")
)

// IsAlreadySigned folds a lost conditional write into the already-signed outcome.
func IsAlreadySigned(err error) bool {
	return errors.Is(err, ErrAlreadySigned) || errors.Is(err, ErrStateConflict)
}
