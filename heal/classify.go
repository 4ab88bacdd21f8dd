package heal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/relay"
)

// Kind enumerates retryable failure classes.
type Kind string

const (
	KindNoSuchTool           Kind = "no-such-tool"
	KindInvalidToolArguments Kind = "invalid-tool-arguments"
	KindEmptyResponse        Kind = "empty-response"
	KindRateLimit            Kind = "rate-limit"
	KindServerError          Kind = "server-error"
	KindNetworkTimeout       Kind = "network-timeout"
	KindStreamInterruption   Kind = "stream-interruption"
	KindJSONParseError       Kind = "json-parse-error"
	KindContentPolicy        Kind = "content-policy"
	KindUnknown              Kind = "unknown-error"
)

// RetryableError is a classified failure together with the single message
// to append to history before retrying. Arguments holds the repaired call
// arguments when an invalid-arguments failure could be healed; the model
// still issues the corrected call itself.
type RetryableError struct {
	Kind      Kind
	Err       error
	Message   relay.Message
	Arguments json.RawMessage
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

type rule struct {
	kind    Kind
	match   func(msg string, d Descriptor) bool
	healing string
}

func anyOf(keywords ...string) func(string, Descriptor) bool {
	return func(msg string, _ Descriptor) bool {
		for _, k := range keywords {
			if strings.Contains(msg, k) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		kind: KindRateLimit,
		match: func(msg string, d Descriptor) bool {
			return d.StatusCode == 429 || anyOf("rate_limit_error", "429", "too many requests", "rate limit")(msg, d)
		},
		healing: "Rate limit reached, please wait and try again.",
	},
	{
		kind: KindServerError,
		match: func(msg string, d Descriptor) bool {
			return (d.StatusCode >= 500 && d.StatusCode <= 504) ||
				anyOf("500", "501", "502", "503", "504", "overload", "internal_server_error")(msg, d)
		},
		healing: "The server had a temporary problem. Please continue.",
	},
	{
		kind:    KindNetworkTimeout,
		match:   anyOf("timeout", "etimedout", "econnreset", "enotfound", "connection", "deadline exceeded"),
		healing: "The connection was interrupted. Please continue.",
	},
	{
		kind: KindStreamInterruption,
		match: func(msg string, d Descriptor) bool {
			return (strings.Contains(msg, "stream") && strings.Contains(msg, "ended")) ||
				anyOf("unexpected_end", "destroyed", "premature close", "unexpected eof")(msg, d)
		},
		healing: "Please continue.",
	},
	{
		kind: KindJSONParseError,
		match: func(msg string, d Descriptor) bool {
			return (strings.Contains(msg, "json") && (strings.Contains(msg, "parse") || strings.Contains(msg, "unmarshal"))) ||
				anyOf("unexpected token", "invalid character")(msg, d)
		},
		healing: "Your last response contained malformed JSON. Please try again with valid JSON.",
	},
	{
		kind:    KindContentPolicy,
		match:   anyOf("content_policy", "content policy", "safety", "content_filter"),
		healing: "Your last response was blocked by a content policy. Please rephrase and continue.",
	},
	{
		kind: KindEmptyResponse,
		match: func(msg string, d Descriptor) bool {
			return d.Type == KindEmptyResponse || anyOf("empty response", "no content")(msg, d)
		},
		healing: "Your last response was empty. Please continue.",
	},
}

// Classify maps d to a RetryableError, or reports false when d is not
// retryable. The returned error's Err field is nil; ClassifyError fills it.
func (h *Healer) Classify(d Descriptor) (*RetryableError, bool) {
	if d.Canceled {
		return nil, false
	}
	switch d.Type {
	case KindNoSuchTool:
		return &RetryableError{Kind: KindNoSuchTool, Message: h.HealUnknownTool(d)}, true
	case KindInvalidToolArguments:
		hr := h.HealInvalidArguments(d)
		return &RetryableError{Kind: KindInvalidToolArguments, Message: hr.Message, Arguments: hr.Arguments}, true
	}
	msg := strings.ToLower(d.Message)
	for _, r := range rules {
		if r.match(msg, d) {
			return &RetryableError{Kind: r.kind, Message: relay.NewUserText(r.healing)}, true
		}
	}
	if d.Retryable {
		return &RetryableError{Kind: KindUnknown, Message: relay.NewUserText("Please continue.")}, true
	}
	return nil, false
}

// ClassifyError describes and classifies err.
func (h *Healer) ClassifyError(err error) (*RetryableError, bool) {
	if err == nil {
		return nil, false
	}
	re, ok := h.Classify(Describe(err))
	if !ok {
		return nil, false
	}
	re.Err = err
	return re, true
}

var defaultHealer = NewHealer()

// Classify classifies d with the default Healer.
func Classify(d Descriptor) (*RetryableError, bool) { return defaultHealer.Classify(d) }

// ClassifyError classifies err with the default Healer.
func ClassifyError(err error) (*RetryableError, bool) { return defaultHealer.ClassifyError(err) }
