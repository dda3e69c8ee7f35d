// Package provider wraps the external capabilities the chat core
// consumes as black boxes: language-model generation, content
// moderation, and text embedding.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// TurnMessage is one prior turn handed to the generator as context.
type TurnMessage struct {
	Role    string
	Content string
}

// Verdict is a moderation outcome. A blocked verdict is a normal
// result, not an error.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Generator produces one candidate reply from persona, context and the
// new user message. No retries happen inside the capability; the
// orchestrator owns retry policy.
type Generator interface {
	Generate(ctx context.Context, systemPersona string, turns []TurnMessage, newMessage string) (string, error)
}

// Moderator classifies text against content policy.
type Moderator interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ErrTimeout reports a capability call that outlived its deadline.
var ErrTimeout = errors.New("provider deadline exceeded")

// Error is a capability failure with retry classification.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// IsRetryable reports whether err is a transient provider failure worth
// one more attempt. Timeouts are never retryable past the deadline.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}

// mapCallError normalizes transport-level failures: deadline expiry
// becomes ErrTimeout, everything else a retryable provider error.
func mapCallError(providerName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &Error{Provider: providerName, Message: err.Error(), Retryable: true}
}
