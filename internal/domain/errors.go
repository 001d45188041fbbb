package domain

import "errors"

var (
	// ErrInvalidCredentials is returned when the session service rejects an
	// email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServiceUnreachable is returned when the session or profile service
	// cannot be contacted, as opposed to rejecting the request.
	ErrServiceUnreachable = errors.New("service unreachable")
	// ErrPasswordPolicy is returned when a new password fails the fixed policy.
	ErrPasswordPolicy = errors.New("password does not meet requirements")
	// ErrInvalidCurrentPassword is returned when re-authentication before a
	// password change fails.
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	// ErrProfileNotFound indicates no profile row exists for a subject id.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrGrantNotFound indicates no access grant matches a token.
	ErrGrantNotFound = errors.New("quiz access grant not found")
	// ErrAccessExpiredOrUsed indicates a grant past its expiration or already consumed.
	ErrAccessExpiredOrUsed = errors.New("quiz access expired or already used")
	// ErrSubmissionFailed indicates the result could not be persisted. Fatal to
	// the attempt; the caller may retry manually.
	ErrSubmissionFailed = errors.New("quiz submission failed")
	// ErrAttemptSubmitted is returned when a terminal attempt is reused.
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrGuideNotFound indicates the study guide does not exist.
	ErrGuideNotFound = errors.New("study guide not found")
	// ErrForbidden is returned when the acting user lacks the required role.
	ErrForbidden = errors.New("forbidden")
)
