package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout indicates the Reasoner did not answer before the deadline
	ErrTimeout = errors.New("reasoner timed out")
	// ErrMalformedResponse indicates the answer could not be parsed or validated
	ErrMalformedResponse = errors.New("malformed reasoner response")
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// APIError represents an error from the Reasoner provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	IsPermanent bool // true for quota errors, false for rate limits
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// Unwrap maps the API error onto the package sentinels
func (e *APIError) Unwrap() error {
	if e.IsPermanent {
		return ErrQuotaExceeded
	}
	if e.StatusCode == 429 {
		return ErrRateLimited
	}
	return nil
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 && !apiErr.IsPermanent
	}

	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}

	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// ExtractAPIError extracts API error details from an error
func ExtractAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "429") {
		return nil
	}

	apiErr := &APIError{
		StatusCode: 429,
		Message:    errStr,
		Type:       "rate_limit_error",
	}

	// OpenAI SDK errors often include JSON in the error message
	if jsonStr, ok := extractJSONObject(errStr); ok {
		var errorData struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		}
		if json.Unmarshal([]byte(jsonStr), &errorData) == nil {
			apiErr.Message = errorData.Message
			apiErr.Type = errorData.Type
			apiErr.Code = errorData.Code
			if errorData.Code == "insufficient_quota" {
				apiErr.IsPermanent = true
			}
		}
	}

	return apiErr
}

// wrapCallError classifies a failed call. Deadline expiry becomes ErrTimeout so
// callers can apply their fallback without inspecting transport errors.
func wrapCallError(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w", operation, ErrTimeout)
	}
	if apiErr := ExtractAPIError(err); apiErr != nil {
		return fmt.Errorf("failed to %s: %w", operation, apiErr)
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}
