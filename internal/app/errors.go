package app

import "fmt"

// DomainError is the error shape every bot operation returns for
// expected failures. Message is safe to echo back to the channel as an
// ephemeral reply; Code and Status are for handlers and logs.
type DomainError struct {
	Status  int
	Code    string // unauthorized, not_found, invalid, exists, upstream, busy, config
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
