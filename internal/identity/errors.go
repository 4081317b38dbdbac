package identity

import (
	"fmt"
	"strings"

	"quizdesk/internal/domain"
)

// ProviderError is an error reported by the identity provider. Code is the
// provider's message, e.g. "INVALID_PASSWORD" or "WEAK_PASSWORD : Password
// should be at least 6 characters".
type ProviderError struct {
	Code       string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: %s (status %d)", e.Code, e.StatusCode)
}

// Unwrap maps provider codes onto the domain taxonomy.
func (e *ProviderError) Unwrap() error {
	code := e.Code
	if i := strings.Index(code, " "); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL", "MISSING_PASSWORD":
		return domain.ErrInvalidCredentials
	case "EMAIL_EXISTS", "WEAK_PASSWORD", "OPERATION_NOT_ALLOWED":
		return domain.ErrValidation
	case "INVALID_ID_TOKEN", "USER_NOT_FOUND", "TOKEN_EXPIRED":
		return domain.ErrUnauthorized
	}
	if e.StatusCode >= 500 {
		return domain.ErrNetwork
	}
	return nil
}
