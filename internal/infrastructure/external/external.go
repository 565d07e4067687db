// Package external holds the content-store and chain boundaries. Both are fallible and
// non-transactional with the database; every call is bounded by a timeout.
package external

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrRejected means the service answered and refused the request; no effect happened.
	ErrRejected = errors.New("external: request rejected")
	// ErrTimeout means no answer arrived in time; the effect may or may not have happened.
	ErrTimeout = errors.New("external: timed out")
)

// ContentStore persists an opaque payload and returns its content id.
type ContentStore interface {
	Store(ctx context.Context, payload []byte) (string, error)
}

// MintRequest asks the chain to mint amount for beneficiary backed by proof.
// Reference is the caller's idempotency reference; a repeated reference returns the original tx.
type MintRequest struct {
	Reference   string
	Beneficiary uuid.UUID
	Amount      float64
	Proof       string
}

// TransferRequest asks the chain to move a token between holders.
type TransferRequest struct {
	Reference string
	TokenID   string
	From      uuid.UUID
	To        uuid.UUID
	Amount    int64
}

// Chain records mints and transfers and can report whether a reference already landed.
type Chain interface {
	Mint(ctx context.Context, req MintRequest) (string, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	Lookup(ctx context.Context, reference string) (txID string, found bool, err error)
}

// IsTimeout reports whether err leaves the external effect unknown.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
