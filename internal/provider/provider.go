package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"boq-estimator/internal/models"
)

// ErrUnsupportedOperation indicates the provider cannot fulfill the requested action.
var ErrUnsupportedOperation = errors.New("unsupported provider operation")

// ErrEmptyPrompt indicates a request without any usable message content.
var ErrEmptyPrompt = errors.New("prompt must contain at least one user message")

// ErrUpstream marks failures reported by the completion service itself.
var ErrUpstream = errors.New("upstream provider error")

// Provider submits prompts to an external completion service.
type Provider interface {
	Name() string
	// Complete returns the whole completion in one call.
	Complete(ctx context.Context, req models.CompletionRequest) (*models.Completion, error)
	// Stream yields text fragments in arrival order. The upstream call starts
	// when iteration begins; a non-nil error ends the sequence.
	Stream(ctx context.Context, req models.CompletionRequest) iter.Seq2[string, error]
}

// APIError is a non-2xx answer from the completion service.
type APIError struct {
	Provider string
	Status   int
	Type     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s upstream error status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrUpstream
}

// Collect folds a fragment sequence into one string. Empty fragments are
// skipped and the first error aborts the fold without a partial result.
func Collect(fragments iter.Seq2[string, error]) (string, error) {
	var b strings.Builder
	for fragment, err := range fragments {
		if err != nil {
			return "", err
		}
		if fragment == "" {
			continue
		}
		b.WriteString(fragment)
	}
	return b.String(), nil
}

// Fail returns a sequence that yields only err.
func Fail(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

// ValidateRequest performs the checks every provider needs before a call.
func ValidateRequest(req models.CompletionRequest) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("model must not be empty")
	}
	for _, msg := range req.Messages {
		if msg.Role == models.RoleUser && (strings.TrimSpace(msg.Text()) != "" || msg.HasImage()) {
			return nil
		}
	}
	return ErrEmptyPrompt
}
