package errors

import (
	"fmt"
)

// ConfigurationError reports an unknown entity kind, a malformed cascade
// rule or a record that does not match its kind's schema. It is fatal and
// never retried.
type ConfigurationError struct {
	Subject string
	Message string
	Cause   error
}

// Configuration creates a ConfigurationError
func Configuration(subject, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Subject, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// WithCause attaches the underlying error
func (e *ConfigurationError) WithCause(err error) *ConfigurationError {
	e.Cause = err
	return e
}

// ScanFailure reports one failed scan. Sibling scans keep running.
type ScanFailure struct {
	Path  string `json:"path"`
	Cause error  `json:"-"`
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("scan of %s failed: %v", e.Path, e.Cause)
}

func (e *ScanFailure) Unwrap() error { return e.Cause }

// WorkItemFailure reports one failed unit of fan-out work.
type WorkItemFailure struct {
	Unit  string `json:"unit"`
	Cause error  `json:"-"`
}

func (e *WorkItemFailure) Error() string {
	return fmt.Sprintf("work item %s failed: %v", e.Unit, e.Cause)
}

func (e *WorkItemFailure) Unwrap() error { return e.Cause }

// ExternalServiceError wraps a failure of a collaborator such as the image
// classifier, the mail relay or the push sender.
type ExternalServiceError struct {
	Service string
	Op      string
	Cause   error
}

// External creates an ExternalServiceError
func External(service, op string, cause error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Op: op, Cause: cause}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Cause)
}

func (e *ExternalServiceError) Unwrap() error { return e.Cause }
