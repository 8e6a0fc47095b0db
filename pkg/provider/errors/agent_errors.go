package errors

import (
	"errors"
	"fmt"
)

// MissingCredentialError is raised at adapter-invocation time when no API
// key was supplied and none is available from the environment.
type MissingCredentialError struct {
	// Provider identifies which provider's credential is missing.
	Provider string

	// EnvVar is the environment variable that was checked.
	EnvVar string
}

// Error implements the error interface.
func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing credential for %s: set %s or pass an API key explicitly", e.Provider, e.EnvVar)
}

// NewMissingCredentialError creates a new MissingCredentialError.
func NewMissingCredentialError(provider, envVar string) *MissingCredentialError {
	return &MissingCredentialError{Provider: provider, EnvVar: envVar}
}

// IsMissingCredentialError checks if an error is a MissingCredentialError.
func IsMissingCredentialError(err error) bool {
	var e *MissingCredentialError
	return errors.As(err, &e)
}

// AbortedError marks a stream or tool execution that ended because its
// cancellation token was tripped, not because of a provider failure.
type AbortedError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AbortedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("aborted: %s", e.Message)
	}
	return "aborted"
}

// Unwrap returns the underlying cause.
func (e *AbortedError) Unwrap() error { return e.Cause }

// NewAbortedError creates a new AbortedError.
func NewAbortedError(message string, cause error) *AbortedError {
	return &AbortedError{Message: message, Cause: cause}
}

// IsAbortedError checks if an error is an AbortedError.
func IsAbortedError(err error) bool {
	var e *AbortedError
	return errors.As(err, &e)
}

// ContextOverflowError is raised out of prompt() when a turn's assistant
// message matched the overflow classifier (spec.md §4.F.4); the caller may
// trim history and call continue().
type ContextOverflowError struct {
	// Detail is the provider error text or a description of the silent
	// truncation that triggered detection.
	Detail string
}

// Error implements the error interface.
func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("context overflow: %s", e.Detail)
}

// NewContextOverflowError creates a new ContextOverflowError.
func NewContextOverflowError(detail string) *ContextOverflowError {
	return &ContextOverflowError{Detail: detail}
}

// IsContextOverflowError checks if an error is a ContextOverflowError.
func IsContextOverflowError(err error) bool {
	var e *ContextOverflowError
	return errors.As(err, &e)
}

// CostLimitExceededError is raised pre- or post-flight per spec.md §4.F.2.
type CostLimitExceededError struct {
	Limit      float64
	TotalCost  float64
}

// Error implements the error interface.
func (e *CostLimitExceededError) Error() string {
	return fmt.Sprintf("cost limit exceeded: total cost %.6f >= limit %.6f", e.TotalCost, e.Limit)
}

// NewCostLimitExceededError creates a new CostLimitExceededError.
func NewCostLimitExceededError(totalCost, limit float64) *CostLimitExceededError {
	return &CostLimitExceededError{Limit: limit, TotalCost: totalCost}
}

// IsCostLimitExceededError checks if an error is a CostLimitExceededError.
func IsCostLimitExceededError(err error) bool {
	var e *CostLimitExceededError
	return errors.As(err, &e)
}

// ContextLimitExceededError is raised pre- or post-flight per spec.md §4.F.2.
type ContextLimitExceededError struct {
	Limit           int
	LastInputTokens int
}

// Error implements the error interface.
func (e *ContextLimitExceededError) Error() string {
	return fmt.Sprintf("context limit exceeded: last input tokens %d >= limit %d", e.LastInputTokens, e.Limit)
}

// NewContextLimitExceededError creates a new ContextLimitExceededError.
func NewContextLimitExceededError(lastInputTokens, limit int) *ContextLimitExceededError {
	return &ContextLimitExceededError{Limit: limit, LastInputTokens: lastInputTokens}
}

// IsContextLimitExceededError checks if an error is a ContextLimitExceededError.
func IsContextLimitExceededError(err error) bool {
	var e *ContextLimitExceededError
	return errors.As(err, &e)
}

// BusyError is raised when a second prompt() is invoked on a Conversation
// that already has one in flight.
type BusyError struct{}

// Error implements the error interface.
func (e *BusyError) Error() string { return "conversation is busy: a prompt is already in progress" }

// NewBusyError creates a new BusyError.
func NewBusyError() *BusyError { return &BusyError{} }

// IsBusyError checks if an error is a BusyError.
func IsBusyError(err error) bool {
	var e *BusyError
	return errors.As(err, &e)
}

// TranslationUnsupportedError is raised when a cross-provider message
// translation (spec.md §4.D.1) has no implementation for the given pair,
// rather than silently producing wrong output.
type TranslationUnsupportedError struct {
	FromAPI string
	ToAPI   string
	Kind    string // e.g. "thinking", "toolCall"
}

// Error implements the error interface.
func (e *TranslationUnsupportedError) Error() string {
	return fmt.Sprintf("translation of %s from %s to %s is not implemented", e.Kind, e.FromAPI, e.ToAPI)
}

// NewTranslationUnsupportedError creates a new TranslationUnsupportedError.
func NewTranslationUnsupportedError(fromAPI, toAPI, kind string) *TranslationUnsupportedError {
	return &TranslationUnsupportedError{FromAPI: fromAPI, ToAPI: toAPI, Kind: kind}
}

// IsTranslationUnsupportedError checks if an error is a TranslationUnsupportedError.
func IsTranslationUnsupportedError(err error) bool {
	var e *TranslationUnsupportedError
	return errors.As(err, &e)
}

// ProtocolError marks a malformed or unexpected provider event: an unknown
// stop reason, events out of order, or missing expected fields. Per
// spec.md §4.D.3, an unknown stop reason is a programmer error, not data.
type ProtocolError struct {
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from %s: %s", e.Provider, e.Message)
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(provider, message string) *ProtocolError {
	return &ProtocolError{Provider: provider, Message: message}
}

// IsProtocolError checks if an error is a ProtocolError.
func IsProtocolError(err error) bool {
	var e *ProtocolError
	return errors.As(err, &e)
}

// SchemaValidationError is raised by the tool argument validator (spec.md
// §4.E) when arguments don't satisfy a tool's declared schema. Preview is a
// truncated rendering of the received arguments for diagnostics.
type SchemaValidationError struct {
	ToolName string
	Preview  string
	Cause    error
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("tool %q: arguments do not satisfy schema (received: %s): %v", e.ToolName, e.Preview, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SchemaValidationError) Unwrap() error { return e.Cause }

// NewSchemaValidationError creates a new SchemaValidationError, truncating
// the preview to a fixed length so a huge argument payload never floods a
// log line.
func NewSchemaValidationError(toolName, preview string, cause error) *SchemaValidationError {
	const maxPreview = 200
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "..."
	}
	return &SchemaValidationError{ToolName: toolName, Preview: preview, Cause: cause}
}

// IsSchemaValidationError checks if an error is a SchemaValidationError.
func IsSchemaValidationError(err error) bool {
	var e *SchemaValidationError
	return errors.As(err, &e)
}
