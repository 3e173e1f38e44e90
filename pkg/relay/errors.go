package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrConfiguration is returned before any upstream call when no
	// credentials are configured.
	ErrConfiguration = errors.New("server configuration error: API key not set")

	ErrInvalidUpstreamResponse = errors.New("invalid response format from AI service")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UpstreamError is a failed provider call. StatusCode is the status the
// provider reported, or 0 when the call never produced one.
type UpstreamError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return "AI Service Error: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HTTPStatus is the status to surface to the caller.
func (e *UpstreamError) HTTPStatus() int {
	if e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

func wrapUpstreamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isClientSideRejection(err) {
		// go-openai refused the request before sending it.
		return fmt.Errorf("build upstream request: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{StatusCode: http.StatusGatewayTimeout, Message: "upstream request timed out", Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = strings.TrimSpace(apiErr.HTTPStatus)
		}
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Message: msg, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := strings.TrimSpace(reqErr.HTTPStatus)
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

func isClientSideRejection(err error) bool {
	for _, target := range []error{
		openai.ErrReasoningModelMaxTokensDeprecated,
		openai.ErrReasoningModelLimitationsLogprobs,
		openai.ErrReasoningModelLimitationsOther,
		openai.ErrChatCompletionStreamNotSupported,
		openai.ErrChatCompletionInvalidModel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
