// Package errors maps service failures onto HTTP responses.
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError Category = iota
	// CategoryDataError The client sent an invalid path or query parameter
	CategoryDataError
	// CategoryResourceNotFound The client is asking for something the service does not know
	CategoryResourceNotFound
	// CategoryNotConfigured The requested feature is disabled in this deployment
	CategoryNotConfigured
	// CategoryDependencyFailure A chain node, the database or the explorer is failing
	CategoryDependencyFailure
	// CategoryRecovering The service is starting or catching up
	CategoryRecovering
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryNotConfigured:
		return "CategoryNotConfigured"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryRecovering:
		return "CategoryRecovering"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries the message shown to clients next to the error that
// is logged.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that err is a ServiceError with the given category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// IsInternalError reports whether err should be logged as a server side failure.
func IsInternalError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category != CategoryGeneralError && svcErr.Category != CategoryDependencyFailure {
		return false
	}
	return true
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error"
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

// BadRequestError returns message to the client with a 400
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

// ResourceNotFoundError returns message to the client with a 404
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

// NotConfiguredError returns message to the client with a 501
func NotConfiguredError(err error, message string) error {
	return newError(CategoryNotConfigured, err, message)
}

// DependencyError returns message to the client with a 502
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}

// RecoveringError returns message to the client with a 503
func RecoveringError(err error, message string) error {
	return newError(CategoryRecovering, err, message)
}

// StatusCode returns the HTTP status code for the error category
func (err *ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryNotConfigured:
		return http.StatusNotImplemented
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	case CategoryRecovering:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
