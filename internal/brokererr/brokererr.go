// Package brokererr provides the closed error taxonomy shared by every
// layer of the broker. Only the gateway dispatcher is allowed to read
// HTTPStatus; everywhere else a *BrokerError should be treated as an
// ordinary error and propagated with errors.As/errors.Is.
package brokererr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a member of the closed error taxonomy in spec §7.
type Kind string

const (
	Validation               Kind = "VALIDATION"
	DatabaseWrite             Kind = "DATABASE_WRITE"
	Rejected                  Kind = "REJECTED"
	RouteDoesNotExist         Kind = "ROUTE_DOES_NOT_EXIST"
	InvalidRequest            Kind = "INVALID_REQUEST"
	NoTicketsAvailable        Kind = "NO_TICKETS_AVAILABLE"
	InvalidTimeslot           Kind = "INVALID_TIMESLOT"
	OverlappingTimeslot       Kind = "OVERLAPPING_TIMESLOT"
	AssociationAlreadyExists  Kind = "ASSOCIATION_ALREADY_EXISTS"
	MalformedEntity           Kind = "MALFORMED_ENTITY"
	Unknown                   Kind = "UNKNOWN"
)

// statusByKind is the fixed Kind -> HTTP status mapping from spec §7.
var statusByKind = map[Kind]int{
	Validation:              http.StatusBadRequest,
	DatabaseWrite:           http.StatusBadRequest,
	Rejected:                http.StatusUnauthorized,
	RouteDoesNotExist:       http.StatusNotFound,
	InvalidRequest:          http.StatusForbidden,
	NoTicketsAvailable:      http.StatusForbidden,
	InvalidTimeslot:         http.StatusForbidden,
	OverlappingTimeslot:     http.StatusForbidden,
	AssociationAlreadyExists: http.StatusBadRequest,
	MalformedEntity:         http.StatusBadRequest,
	Unknown:                 http.StatusPaymentRequired, // 402, per spec's closed code set
}

// BrokerError is a structured error carrying a taxonomy Kind and the status
// code the gateway must answer with.
type BrokerError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// HTTPStatus returns the status code fixed for this error's Kind.
func (e *BrokerError) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return statusByKind[Unknown]
}

// New creates a BrokerError of the given kind.
func New(kind Kind, format string, args ...interface{}) *BrokerError {
	return &BrokerError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a BrokerError of the given kind, wrapping an underlying error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *BrokerError {
	return &BrokerError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// As extracts a *BrokerError from an error chain.
func As(err error) (*BrokerError, bool) {
	var be *BrokerError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the taxonomy Kind of err, or Unknown if err is not (or does
// not wrap) a *BrokerError.
func KindOf(err error) Kind {
	if be, ok := As(err); ok {
		return be.Kind
	}
	return Unknown
}

// StatusOf returns the HTTP status the dispatcher must answer with for err.
func StatusOf(err error) int {
	if be, ok := As(err); ok {
		return be.HTTPStatus()
	}
	return statusByKind[Unknown]
}
