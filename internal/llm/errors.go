package llm

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrRateLimited marks a request rejected for exceeding the allowed rate.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrRetriesExhausted is returned once every model has used up its attempts.
	ErrRetriesExhausted = errors.New("max retries exceeded for all available models")
	// ErrModelUnavailable is returned when a model handle cannot be built.
	ErrModelUnavailable = errors.New("model unavailable")
)

// IsRateLimit reports whether err signals a rate-limit-class failure
// (HTTP 429 / RESOURCE_EXHAUSTED) as opposed to a permanent one.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Status == "RESOURCE_EXHAUSTED"
	}

	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "ResourceExhausted")
}
