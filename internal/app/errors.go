package app

import "fmt"

// DomainError is a user-visible failure with its HTTP mapping attached.
// The codes used across the intake service: NOT_FOUND, READ_ONLY
// (submitted project), VALIDATION_ERROR, CONFLICT (proposal version
// race), EMAIL_EXISTS, UNAUTHORIZED, SERVER_ERROR. mapError passes these
// through untouched; anything else is a 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
