// Package status provides sanitization for task status messages.
// Error payloads originate from worker internals and may carry
// credentials, connection strings or host details that must not reach
// browser clients.
package status

import (
	"fmt"
	"regexp"

	"taskstream/internal/model"
)

// FriendlyError is a user-facing rendering of a worker error.
type FriendlyError struct {
	// UserMessage is the user-friendly error message
	UserMessage string `json:"user_message"`
	// Suggestion provides actionable advice for the user
	Suggestion string `json:"suggestion"`
	// ErrorCode is a unique code for this error type
	ErrorCode string `json:"error_code"`
}

// sensitivePattern represents a pattern for sensitive information
type sensitivePattern struct {
	pattern     *regexp.Regexp
	replacement string
	description string
}

// ErrorTypeMappings contains default user-facing messages per worker
// error type.
var ErrorTypeMappings = map[string]FriendlyError{
	"TimeoutError": {
		UserMessage: "The operation took too long and was stopped",
		Suggestion:  "Try again, large documents may need to be split into smaller parts",
		ErrorCode:   "TASK_TIMEOUT",
	},
	"CancelledError": {
		UserMessage: "The operation was cancelled",
		Suggestion:  "Resubmit the task if the cancellation was unintended",
		ErrorCode:   "TASK_CANCELLED",
	},
	"ConnectionError": {
		UserMessage: "A backend service is temporarily unreachable",
		Suggestion:  "The system retries automatically, check again in a moment",
		ErrorCode:   "BACKEND_UNAVAILABLE",
	},
	"ValidationError": {
		UserMessage: "The submitted content could not be processed",
		Suggestion:  "Check the document format and encoding, then resubmit",
		ErrorCode:   "INVALID_INPUT",
	},
	"MemoryError": {
		UserMessage: "The document is too large to process",
		Suggestion:  "Split the document into smaller parts and resubmit",
		ErrorCode:   "RESOURCE_EXHAUSTED",
	},
}

// Sanitizer redacts sensitive information from error messages and maps
// known worker error types to user-friendly messages.
type Sanitizer struct {
	mappings          map[string]FriendlyError
	sensitivePatterns []*sensitivePattern
}

// NewSanitizer creates a sanitizer with the default mappings and
// redaction patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		mappings: ErrorTypeMappings,
		sensitivePatterns: []*sensitivePattern{
			{
				pattern:     regexp.MustCompile(`(?i)(password|passwd|pwd|secret|token|api[_-]?key|authorization)\s*[=:]\s*\S+`),
				replacement: "$1=[REDACTED]",
				description: "credentials in key=value form",
			},
			{
				pattern:     regexp.MustCompile(`(?i)\b(?:mysql|postgres(?:ql)?|redis|amqp|mongodb(?:\+srv)?)://\S+`),
				replacement: "[REDACTED_DSN]",
				description: "connection strings",
			},
			{
				pattern:     regexp.MustCompile(`\bBearer\s+[A-Za-z0-9\-._~+/]+=*`),
				replacement: "Bearer [REDACTED]",
				description: "bearer tokens",
			},
			{
				pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`),
				replacement: "[REDACTED_ADDR]",
				description: "host addresses",
			},
			{
				pattern:     regexp.MustCompile(`(?:/[\w.\-]+){3,}`),
				replacement: "[PATH]",
				description: "filesystem paths",
			},
		},
	}
}

// Redact replaces sensitive fragments in a free-form message.
func (s *Sanitizer) Redact(message string) string {
	for _, p := range s.sensitivePatterns {
		message = p.pattern.ReplaceAllString(message, p.replacement)
	}
	return message
}

// Friendly resolves the user-facing rendition for an error type,
// falling back to a generic message for unknown types.
func (s *Sanitizer) Friendly(errorType string) FriendlyError {
	if mapped, ok := s.mappings[errorType]; ok {
		return mapped
	}
	return FriendlyError{
		UserMessage: "Processing failed due to an internal error",
		Suggestion:  "Try again, contact support if the problem persists",
		ErrorCode:   "INTERNAL_ERROR",
	}
}

// Sanitize returns a copy of the message safe for client delivery.
// The error message and status message are redacted, the stack trace
// is dropped and a user-facing rendition is attached to the metadata.
// The original message is left untouched, persistence keeps the full
// diagnostics.
func (s *Sanitizer) Sanitize(msg *model.TaskStatusMessage) *model.TaskStatusMessage {
	if msg.Error == nil {
		return msg
	}

	clone := *msg
	errCopy := *msg.Error
	errCopy.ErrorMessage = s.Redact(errCopy.ErrorMessage)
	errCopy.StackTrace = ""
	clone.Error = &errCopy

	friendly := s.Friendly(errCopy.ErrorType)
	metadata := make(map[string]interface{}, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata["user_error"] = map[string]interface{}{
		"user_message": friendly.UserMessage,
		"suggestion":   friendly.Suggestion,
		"error_code":   friendly.ErrorCode,
	}
	clone.Metadata = metadata

	if clone.StatusMessage != "" {
		clone.StatusMessage = s.Redact(clone.StatusMessage)
	} else {
		clone.StatusMessage = fmt.Sprintf("%s (%s)", friendly.UserMessage, friendly.ErrorCode)
	}
	return &clone
}
