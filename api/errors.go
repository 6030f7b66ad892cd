package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized is returned when the session credential is missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrQuotaExceeded is returned when the free message limit is used up (HTTP 402).
	ErrQuotaExceeded = errors.New("free message limit reached")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMissingID is returned when a call needs a conversation id and got none.
	ErrMissingID = errors.New("conversation id is required")
)

// StatusError describes a non-2xx API response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Detail)
}

// Is maps status codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case ErrQuotaExceeded:
		return e.Code == http.StatusPaymentRequired
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

const maxDetail = 256

// detailFrom extracts a readable message from an error body. The API
// answers with {"detail": "..."}; anything else is returned trimmed.
func detailFrom(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return truncate(string(b))
		}
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) <= maxDetail {
		return s
	}
	return s[:maxDetail] + "..."
}
