package domain

import "errors"

// Authentication.
var (
	// ErrInvalidCredentials is returned when the backend or the identity provider rejects the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityProvider marks a failure of the federated identity step.
	ErrIdentityProvider = errors.New("identity provider error")
	// ErrNetwork marks transport failures and unavailable backends.
	ErrNetwork = errors.New("network error")
	// ErrSessionInconsistent is returned when only one of the two credentials is present.
	ErrSessionInconsistent = errors.New("session inconsistent")
	// ErrUnauthenticated is returned when no session exists.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrRegistrationIncomplete means a federated identity was created but could not be rolled back.
	ErrRegistrationIncomplete = errors.New("registration incomplete")
)

// Gateway classification.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrServer       = errors.New("server error")
	ErrValidation   = errors.New("validation error")
)

// Quiz session.
var (
	// ErrQuizNotFound indicates the quiz could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrIncompleteAnswers is returned by submit when an answer is blank.
	ErrIncompleteAnswers = errors.New("all questions must be answered")
	// ErrIndexOutOfRange is returned for answers outside the question range.
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrInvalidState is returned for operations not allowed in the current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrSubmitInProgress rejects a second submit while one is pending.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrSessionClosed is returned when a reply arrives for a closed session.
	ErrSessionClosed = errors.New("quiz session closed")
)

// Rendering.
var (
	// ErrCaptureFailed means the certificate layout could not be rasterized.
	ErrCaptureFailed = errors.New("certificate capture failed")
	// ErrNotEligible is returned when rendering is requested for a failing verdict.
	ErrNotEligible = errors.New("certificate requires a passing verdict")
)
