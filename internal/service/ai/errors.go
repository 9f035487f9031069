package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrBackendUnavailable reports a timeout or connection failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrBackendError reports an error response or a malformed completion.
	ErrBackendError = errors.New("backend error")
)

// classify maps client failures onto ErrBackendUnavailable or ErrBackendError.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	case errors.As(err, &apiErr), errors.As(err, &reqErr):
		return fmt.Errorf("%w: %w", ErrBackendError, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return fmt.Errorf("%w: malformed response: %w", ErrBackendError, err)
	default:
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
}
