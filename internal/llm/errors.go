package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

var errEmptyCompletion = apperrors.NewQueryExecutionError("completion returned no choices", nil)

// classifyError maps a provider error onto the application taxonomy:
// 401 is an authentication failure, 404 a configuration problem (usually a
// wrong model or deployment name), timeouts, connection failures, 429 and 5xx
// are BackendUnavailable. Anything else is returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case status == http.StatusUnauthorized || strings.Contains(lower, "unauthorized"):
		return apperrors.NewAuthenticationError("language model rejected credentials", err)
	case status == http.StatusNotFound || strings.Contains(lower, "not found"):
		return apperrors.NewConfigurationError("language model deployment not found", err)
	case status == http.StatusTooManyRequests || status >= 500:
		return apperrors.NewBackendUnavailableError("language model unavailable", err)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout"):
		return apperrors.NewBackendUnavailableError("language model timed out", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.NewBackendUnavailableError("language model unreachable", err)
	}
	return err
}
