package services

import (
	"fmt"
	"net/http"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func invalidState(message string) *ServiceError {
	return newServiceError(http.StatusConflict, "GEO_INVALID_STATE", message, nil)
}

func cannotRollback(message string) *ServiceError {
	return newServiceError(http.StatusConflict, "GEO_CANNOT_ROLLBACK", message, nil)
}

func notFound(message string, cause error) *ServiceError {
	return newServiceError(http.StatusNotFound, "GEO_NOT_FOUND", message, cause)
}

func invalidBody(message string) *ServiceError {
	return newServiceError(http.StatusBadRequest, "GEO_INVALID_BODY", message, nil)
}

func invalidHierarchy(cause error) *ServiceError {
	return newServiceError(http.StatusUnprocessableEntity, "GEO_INVALID_HIERARCHY", "hierarchy validation failed", cause)
}
