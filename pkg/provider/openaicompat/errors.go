package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/toolloop/pkg/api"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 * 1024

// MapHTTPError converts an HTTP response with a non-2xx status code into a
// provider_error carrying the status and the raw body. The message is taken
// from the OpenAI error envelope when the body has one.
func MapHTTPError(resp *http.Response) *api.APIError {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}

	message := ExtractErrorMessage(body)
	if message == "" {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			message = "backend authentication failed"
		case resp.StatusCode == http.StatusNotFound:
			message = "backend endpoint not found"
		case resp.StatusCode == http.StatusTooManyRequests:
			message = "backend rate limit exceeded"
		case resp.StatusCode >= http.StatusInternalServerError:
			message = fmt.Sprintf("backend server error (HTTP %d)", resp.StatusCode)
		default:
			message = fmt.Sprintf("unexpected backend error (HTTP %d)", resp.StatusCode)
		}
	}

	return api.NewProviderError(resp.StatusCode, string(body), message)
}

// MapNetworkError converts a network-level error (connection refused, timeout,
// DNS resolution failure, cancellation) into a transport_error.
func MapNetworkError(err error) *api.APIError {
	switch {
	case errors.Is(err, context.Canceled):
		return api.NewTransportError("request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return api.NewTransportError("request timed out", err)
	}
	return api.NewTransportError(fmt.Sprintf("backend connection error: %s", err.Error()), err)
}

// ExtractErrorMessage parses body as a ChatErrorResponse and returns the
// error message if found.
func ExtractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
