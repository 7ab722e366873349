package payment

import (
	"context"
	"errors"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDuplicateKey    = errors.New("payment reference already exists")
)

// IRepository is one backend of the payment store. Both the Postgres
// backend and the fallback Cache satisfy it with the same semantics.
type IRepository interface {
	// Insert fails with ErrDuplicateKey when either the external reference
	// or the checkout request id is already known.
	Insert(ctx context.Context, payment *Entity) error
	// FindByReference resolves an external reference or a checkout request id.
	FindByReference(ctx context.Context, key string) (*Entity, error)
	// ApplyTerminalStatus moves a PENDING payment to status. applied is
	// false when the payment was already terminal; it is returned unchanged.
	ApplyTerminalStatus(ctx context.Context, checkoutRequestID string, status Status, receipt, resultCode string) (p *Entity, applied bool, err error)
}
