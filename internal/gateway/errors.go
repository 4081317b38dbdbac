package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"quizdesk/internal/domain"
)

// APIError is a classified backend failure. Kind is one of the domain
// gateway sentinels, so callers can use errors.Is(err, domain.ErrNotFound).
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.StatusCode != 0 {
		msg = fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + msg
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrUnauthorized
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity || code == http.StatusConflict:
		return domain.ErrValidation
	case code >= 500:
		return domain.ErrServer
	default:
		return domain.ErrServer
	}
}

// errorResponse covers {"error": ...} from the custom views and {"detail": ...} from DRF.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func (r errorResponse) message() string {
	if strings.TrimSpace(r.Error) != "" {
		return r.Error
	}
	return r.Detail
}
