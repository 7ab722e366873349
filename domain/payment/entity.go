package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// Entity is a payment as persisted. ID stays zero for records that only
// ever reached the fallback cache.
type Entity struct {
	ID                int64           `db:"id" json:"id,omitempty"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	PhoneNumber       string          `db:"phone_number" json:"phoneNumber"`
	ExternalReference string          `db:"external_reference" json:"externalReference"`
	CheckoutRequestID string          `db:"checkout_request_id" json:"checkoutRequestId"`
	Status            Status          `db:"status" json:"status"`
	MpesaReceipt      string          `db:"mpesa_receipt" json:"mpesaReceipt,omitempty"`
	ResultCode        string          `db:"result_code" json:"resultCode,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updatedAt"`
}

// applyTerminal is the single place a status changes. It reports false
// and leaves the entity untouched when the payment already left PENDING.
func (e *Entity) applyTerminal(status Status, receipt, resultCode string, now time.Time) bool {
	if e.Status.IsTerminal() {
		return false
	}
	e.Status = status
	e.MpesaReceipt = receipt
	e.ResultCode = resultCode
	e.UpdatedAt = now
	return true
}
