package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"

	"mpesa-checkout/infrastructure/metrics"
)

const resyncPublishTimeout = 2 * time.Second

type WriteOutcome string

const (
	Stored         WriteOutcome = "STORED"
	StoredFallback WriteOutcome = "STORED_FALLBACK"
	Failed         WriteOutcome = "FAILED"
)

type CreateResult struct {
	Payment *Entity
	Outcome WriteOutcome
	Err     error
}

type TransitionOutcome string

const (
	Applied         TransitionOutcome = "APPLIED"
	AlreadyTerminal TransitionOutcome = "ALREADY_TERMINAL"
)

type Transition struct {
	Payment *Entity
	Outcome TransitionOutcome
}

// ResyncPublisher hands fallback-only payments to the resync consumer.
type ResyncPublisher interface {
	Publish(ctx context.Context, msgID string, data []byte) error
}

type resyncMessage struct {
	ExternalReference string `json:"externalReference"`
}

// IStore is the only writer of payment state.
type IStore interface {
	Create(ctx context.Context, payment *Entity) CreateResult
	FindByReference(ctx context.Context, key string) (*Entity, error)
	ApplyTerminalStatus(ctx context.Context, checkoutRequestID string, status Status, receipt, resultCode string) (Transition, error)
}

type store struct {
	durable IRepository
	cache   IRepository
	resync  ResyncPublisher
	now     func() time.Time
}

// NewStore combines the durable backend with the fallback cache. resync may
// be nil, in which case fallback-only records stay in the cache until swept.
func NewStore(durable, cache IRepository, resync ResyncPublisher) IStore {
	return &store{
		durable: durable,
		cache:   cache,
		resync:  resync,
		now:     time.Now,
	}
}

func (s *store) Create(ctx context.Context, payment *Entity) CreateResult {
	now := s.now().UTC()
	payment.Status = StatusPending
	payment.MpesaReceipt, payment.ResultCode = "", ""
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	err := s.durable.Insert(ctx, payment)
	switch {
	case err == nil:
		// Keep a copy close at hand for callbacks that arrive while the
		// database is unreachable.
		if cacheErr := s.cache.Insert(ctx, payment); cacheErr != nil {
			log.Debugw("fallback cache copy skipped", "externalReference", payment.ExternalReference, "error", cacheErr)
		}
		metrics.IncStoreWrite("create", string(Stored))
		return CreateResult{Payment: payment, Outcome: Stored}

	case errors.Is(err, ErrDuplicateKey):
		metrics.IncStoreWrite("create", string(Failed))
		return CreateResult{Outcome: Failed, Err: err}
	}

	log.Warnw("durable store write failed, keeping payment in fallback cache",
		"externalReference", payment.ExternalReference,
		"checkoutRequestId", payment.CheckoutRequestID,
		"error", err,
	)

	if cacheErr := s.cache.Insert(ctx, payment); cacheErr != nil {
		metrics.IncStoreWrite("create", string(Failed))
		return CreateResult{Outcome: Failed, Err: fmt.Errorf("fallback cache: %w", cacheErr)}
	}

	metrics.IncStoreWrite("create", string(StoredFallback))
	s.publishResync(ctx, payment)
	return CreateResult{Payment: payment, Outcome: StoredFallback}
}

func (s *store) FindByReference(ctx context.Context, key string) (*Entity, error) {
	payment, durableErr := s.durable.FindByReference(ctx, key)
	if durableErr == nil {
		return payment, nil
	}
	if !errors.Is(durableErr, ErrPaymentNotFound) {
		log.Warnw("durable store lookup failed, checking fallback cache", "key", key, "error", durableErr)
	}

	payment, err := s.cache.FindByReference(ctx, key)
	if err == nil {
		return payment, nil
	}
	if errors.Is(err, ErrPaymentNotFound) && !errors.Is(durableErr, ErrPaymentNotFound) {
		return nil, fmt.Errorf("%w (durable store: %v)", ErrPaymentNotFound, durableErr)
	}
	return nil, err
}

func (s *store) ApplyTerminalStatus(
	ctx context.Context, checkoutRequestID string, status Status, receipt, resultCode string,
) (Transition, error) {
	if !status.IsTerminal() {
		return Transition{}, fmt.Errorf("status %s is not terminal", status)
	}

	// A terminal status that only reached the cache while the database was
	// down is the first writer; replay it instead of the incoming one.
	if cached, err := s.cache.FindByReference(ctx, checkoutRequestID); err == nil && cached.Status.IsTerminal() {
		return s.replayCachedTerminal(ctx, cached), nil
	}

	payment, applied, durableErr := s.durable.ApplyTerminalStatus(ctx, checkoutRequestID, status, receipt, resultCode)
	if durableErr == nil {
		// Mirror whatever the database settled on, so the cached copy never
		// disagrees with the first writer.
		if _, _, err := s.cache.ApplyTerminalStatus(ctx, checkoutRequestID, payment.Status, payment.MpesaReceipt, payment.ResultCode); err != nil && !errors.Is(err, ErrPaymentNotFound) {
			log.Debugw("fallback cache status mirror skipped", "checkoutRequestId", checkoutRequestID, "error", err)
		}
		metrics.IncStoreWrite("terminal", string(transitionOutcome(applied)))
		return Transition{Payment: payment, Outcome: transitionOutcome(applied)}, nil
	}

	if !errors.Is(durableErr, ErrPaymentNotFound) {
		log.Warnw("durable store status update failed, applying to fallback cache",
			"checkoutRequestId", checkoutRequestID,
			"error", durableErr,
		)
	}

	payment, applied, err := s.cache.ApplyTerminalStatus(ctx, checkoutRequestID, status, receipt, resultCode)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) && !errors.Is(durableErr, ErrPaymentNotFound) {
			return Transition{}, fmt.Errorf("%w (durable store: %v)", ErrPaymentNotFound, durableErr)
		}
		return Transition{}, err
	}

	if applied {
		s.publishResync(ctx, payment)
	}
	metrics.IncStoreWrite("terminal_fallback", string(transitionOutcome(applied)))
	return Transition{Payment: payment, Outcome: transitionOutcome(applied)}, nil
}

func (s *store) replayCachedTerminal(ctx context.Context, cached *Entity) Transition {
	payment, applied, err := s.durable.ApplyTerminalStatus(ctx, cached.CheckoutRequestID, cached.Status, cached.MpesaReceipt, cached.ResultCode)
	switch {
	case err != nil:
		if !errors.Is(err, ErrPaymentNotFound) {
			log.Debugw("durable store unavailable, cached terminal status kept", "checkoutRequestId", cached.CheckoutRequestID, "error", err)
		}
		payment = cached
	case applied:
		log.Infow("cached terminal status written to durable store",
			"checkoutRequestId", cached.CheckoutRequestID,
			"status", cached.Status,
		)
	}

	metrics.IncStoreWrite("terminal", string(AlreadyTerminal))
	return Transition{Payment: payment, Outcome: AlreadyTerminal}
}

func (s *store) publishResync(ctx context.Context, payment *Entity) {
	if s.resync == nil {
		return
	}

	data, err := json.Marshal(resyncMessage{ExternalReference: payment.ExternalReference})
	if err != nil {
		log.Errorw("encode resync message", "externalReference", payment.ExternalReference, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resyncPublishTimeout)
	defer cancel()

	msgID := payment.ExternalReference + ":" + string(payment.Status)
	if err := s.resync.Publish(ctx, msgID, data); err != nil {
		log.Warnw("resync publish failed, payment stays cache-only until swept",
			"externalReference", payment.ExternalReference,
			"error", err,
		)
	}
}

func transitionOutcome(applied bool) TransitionOutcome {
	if applied {
		return Applied
	}
	return AlreadyTerminal
}
