package payment

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"mpesa-checkout/infrastructure/metrics"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "APPLIED"
	OutcomeDuplicate Outcome = "DUPLICATE"
	OutcomeUnmatched Outcome = "UNMATCHED"
	OutcomeIgnored   Outcome = "IGNORED"
)

type Reconciliation struct {
	Outcome           Outcome
	CheckoutRequestID string
	Status            Status
	Payment           *Entity
}

type IReconciler interface {
	// OnCallback only fails with ErrInvalidCallback. Every other outcome,
	// unmatched included, is acknowledged to the gateway.
	OnCallback(ctx context.Context, body []byte) (Reconciliation, error)
}

type reconciler struct {
	store   IStore
	journal IUnmatchedJournal
	now     func() time.Time
}

// NewReconciler builds the callback state machine. journal may be nil.
func NewReconciler(store IStore, journal IUnmatchedJournal) IReconciler {
	return &reconciler{store: store, journal: journal, now: time.Now}
}

func (r *reconciler) OnCallback(ctx context.Context, body []byte) (Reconciliation, error) {
	callback, err := ParseCallback(body)
	if err != nil {
		metrics.IncCallback("invalid")
		return Reconciliation{}, err
	}

	result := Reconciliation{CheckoutRequestID: callback.CheckoutRequestID}
	if callback.CheckoutRequestID == "" {
		return r.unmatched(ctx, result, body, "callback has no checkout request id"), nil
	}

	if _, err := r.store.FindByReference(ctx, callback.CheckoutRequestID); err != nil {
		return r.unmatched(ctx, result, body, err.Error()), nil
	}

	status, rawCode, ok := callback.TerminalStatus()
	if !ok {
		log.Infow("callback carries no final outcome, ignoring",
			"checkoutRequestId", callback.CheckoutRequestID,
			"status", callback.StatusText,
		)
		result.Outcome = OutcomeIgnored
		metrics.IncCallback(string(result.Outcome))
		return result, nil
	}

	transition, err := r.store.ApplyTerminalStatus(ctx, callback.CheckoutRequestID, status, callback.MpesaReceipt, rawCode)
	if err != nil {
		if !errors.Is(err, ErrPaymentNotFound) {
			log.Errorw("apply terminal status", "checkoutRequestId", callback.CheckoutRequestID, "error", err)
		}
		return r.unmatched(ctx, result, body, err.Error()), nil
	}

	result.Payment = transition.Payment
	result.Status = transition.Payment.Status
	result.Outcome = OutcomeApplied
	if transition.Outcome == AlreadyTerminal {
		result.Outcome = OutcomeDuplicate
		log.Infow("duplicate callback for terminal payment",
			"checkoutRequestId", callback.CheckoutRequestID,
			"status", transition.Payment.Status,
		)
	} else {
		log.Infow("payment reconciled",
			"checkoutRequestId", callback.CheckoutRequestID,
			"externalReference", transition.Payment.ExternalReference,
			"status", transition.Payment.Status,
			"resultCode", rawCode,
		)
	}

	metrics.IncCallback(string(result.Outcome))
	return result, nil
}

func (r *reconciler) unmatched(ctx context.Context, result Reconciliation, body []byte, reason string) Reconciliation {
	result.Outcome = OutcomeUnmatched
	metrics.IncCallback(string(result.Outcome))

	log.Warnw("unmatched callback acknowledged",
		"checkoutRequestId", result.CheckoutRequestID,
		"reason", reason,
	)

	if r.journal == nil {
		return result
	}

	entry := UnmatchedCallback{
		ID:                uuid.NewString(),
		CheckoutRequestID: result.CheckoutRequestID,
		Reason:            reason,
		Payload:           append([]byte(nil), body...),
		ReceivedAt:        r.now().UTC(),
	}
	if err := r.journal.Record(ctx, entry); err != nil {
		log.Errorw("record unmatched callback", "checkoutRequestId", result.CheckoutRequestID, "error", err)
	}
	return result
}
