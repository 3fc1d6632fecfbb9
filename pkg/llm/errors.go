package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies a remote-completion failure for presentation.
type Kind int

const (
	// KindNetwork covers transport failures and timeouts.
	KindNetwork Kind = iota + 1
	// KindAuth covers invalid or missing credentials.
	KindAuth
	// KindQuota covers rate or quota exhaustion.
	KindQuota
	// KindValidation covers violated call preconditions (empty history,
	// non-user last turn).
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindQuota:
		return "quota"
	case KindValidation:
		return "validation"
	}
	return "unknown"
}

// Error wraps a failure with its kind. The underlying cause is preserved
// and reachable through errors.Is/As.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or 0 when err carries none.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

// classify maps a raw transport error to a typed one. Structured API
// error codes are preferred; the substring heuristics are a fallback for
// errors that arrive as plain text.
func classify(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return &Error{Kind: KindAuth, Err: err}
		case 429:
			return &Error{Kind: KindQuota, Err: err}
		}
		if apiErr.Code >= 500 {
			return &Error{Kind: KindNetwork, Err: err}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key") || strings.Contains(msg, "api_key") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "permission"):
		return &Error{Kind: KindAuth, Err: err}
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "limit exceeded"):
		return &Error{Kind: KindQuota, Err: err}
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "network"):
		return &Error{Kind: KindNetwork, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
