package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups errors by how a caller must react to them.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "state_conflict"
	KindUnauthorized    Kind = "authorization"
	KindUpstream        Kind = "upstream"
	KindUpstreamTimeout Kind = "upstream_timeout"
	KindInternal        Kind = "internal"
)

// Error is a structured error with a stable code and a human-readable reason.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // wrapped internal error, never sent to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so errors.Is(err, ErrNotListable()) works across instances.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ---- Validation ----

func Validation(message string) *Error {
	return New(KindValidation, "VALIDATION", message)
}

// ---- Lookups ----

func NotFound(entity string) *Error {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", entity))
}

func ErrListingNotFound() *Error {
	return New(KindConflict, "LISTING_NOT_FOUND", "Listing not found or no longer active")
}

func ErrNoDataAvailable() *Error {
	return New(KindConflict, "NO_DATA_AVAILABLE", "No IoT data available yet")
}

// ---- State conflicts ----

func ErrNotListable() *Error {
	return New(KindConflict, "NOT_LISTABLE", "Credit not listable")
}

func ErrNotRetireable() *Error {
	return New(KindConflict, "NOT_RETIREABLE", "Credit not retire-able")
}

func ErrNotRevocable() *Error {
	return New(KindConflict, "NOT_REVOCABLE", "Credit can only be revoked while minted or listed")
}

func ErrNoBuyerAssigned() *Error {
	return New(KindConflict, "NO_BUYER_ASSIGNED", "No buyer assigned yet")
}

func ErrBuyerAlreadyAssigned() *Error {
	return New(KindConflict, "BUYER_ALREADY_ASSIGNED", "Sell request already has a buyer or is no longer pending")
}

func ErrInsufficientBalance() *Error {
	return New(KindConflict, "INSUFFICIENT_BALANCE", "Buyer has insufficient balance")
}

func ErrInsufficientHydrogen() *Error {
	return New(KindValidation, "INSUFFICIENT_HYDROGEN", "Insufficient hydrogen to mint a coin")
}

func ErrSettlementInProgress() *Error {
	return New(KindConflict, "SETTLEMENT_IN_PROGRESS", "A settlement for this request is still being resolved")
}

// ---- Authorization ----

func ErrNotAuthorized() *Error {
	return New(KindUnauthorized, "NOT_AUTHORIZED", "Not authorized")
}

func ErrSensorNotApproved() *Error {
	return New(KindUnauthorized, "SENSOR_NOT_APPROVED", "Sensor not approved")
}

// ---- Upstream adapters ----

func ErrUpstreamMintFailure(err error) *Error {
	return Wrap(KindUpstream, "UPSTREAM_MINT_FAILURE", "Chain adapter rejected the mint", err)
}

func ErrUpstreamTransferFailure(err error) *Error {
	return Wrap(KindUpstream, "UPSTREAM_TRANSFER_FAILURE", "Chain adapter rejected the transfer", err)
}

func ErrUpstreamStoreFailure(err error) *Error {
	return Wrap(KindUpstream, "UPSTREAM_STORE_FAILURE", "Content store rejected the payload", err)
}

// ErrUpstreamTimeout means the external effect may or may not have happened.
func ErrUpstreamTimeout(err error) *Error {
	return Wrap(KindUpstreamTimeout, "UPSTREAM_TIMEOUT", "External service did not answer in time; settlement state unknown", err)
}

// ---- System ----

func Internal(err error) *Error {
	return Wrap(KindInternal, "INTERNAL", "Internal server error", err)
}
