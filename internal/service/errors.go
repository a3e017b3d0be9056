package service

import (
	"fmt"
	"net/http"
)

// ServiceError carries a stable error code and the HTTP status the boundary
// should answer with.
type ServiceError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Sentinel errors surfaced unchanged to the caller.
var (
	ErrTestCaseNotFound = &ServiceError{
		Code:    "TESTCASE_NOT_FOUND",
		Status:  http.StatusNotFound,
		Message: "Test case not found",
	}
	ErrReferenceNotFound = &ServiceError{
		Code:    "REFERENCE_NOT_FOUND",
		Status:  http.StatusNotFound,
		Message: "Reference not found",
	}
	ErrReferenceExists = &ServiceError{
		Code:    "REFERENCE_ALREADY_EXISTS",
		Status:  http.StatusConflict,
		Message: "Reference already exists",
	}
)

// 内部错误包装

func errCreateFailed(err error) *ServiceError {
	return &ServiceError{
		Code:    "TESTCASE_CREATE_FAILED",
		Status:  http.StatusInternalServerError,
		Message: "Failed to create test case",
		Err:     err,
	}
}

func errUpdateFailed(err error) *ServiceError {
	return &ServiceError{
		Code:    "TESTCASE_UPDATE_FAILED",
		Status:  http.StatusInternalServerError,
		Message: "Failed to update test case",
		Err:     err,
	}
}

func errPersistence(message string, err error) *ServiceError {
	return &ServiceError{
		Code:    "PERSISTENCE_ERROR",
		Status:  http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

func errAIUnavailable(message string, err error) *ServiceError {
	return &ServiceError{
		Code:    "EXTERNAL_SERVICE_ERROR",
		Status:  http.StatusServiceUnavailable,
		Message: message,
		Err:     err,
	}
}

func errAINotConfigured(err error) *ServiceError {
	return &ServiceError{
		Code:    "AI_SERVICE_NOT_CONFIGURED",
		Status:  http.StatusInternalServerError,
		Message: "AI service API key is not configured",
		Err:     err,
	}
}
