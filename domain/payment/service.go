package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"mpesa-checkout/infrastructure/config"
	"mpesa-checkout/infrastructure/metrics"
	"mpesa-checkout/infrastructure/service"
)

var minimumAmount = decimal.NewFromInt(1)

type Classification string

const (
	ValidationError  Classification = "VALIDATION_ERROR"
	TransportError   Classification = Classification(service.KindTransport)
	GatewayRejection Classification = Classification(service.KindRejection)
	ProtocolError    Classification = Classification(service.KindProtocol)
)

// InitiationError is what callers of Initiate branch on. Message is safe to
// show to the payer.
type InitiationError struct {
	Classification Classification
	Message        string
	Err            error
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Classification, e.Message)
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

type IService interface {
	Initiate(ctx context.Context, input InitiateInput) (*Entity, error)
}

type paymentService struct {
	gateway service.IGateway
	store   IStore
	refs    *ReferenceGenerator
	cfg     config.Gateway
}

func NewService(gateway service.IGateway, store IStore, refs *ReferenceGenerator, cfg config.Gateway) IService {
	if refs == nil {
		refs = NewReferenceGenerator()
	}
	return &paymentService{gateway: gateway, store: store, refs: refs, cfg: cfg}
}

func (s *paymentService) Initiate(ctx context.Context, input InitiateInput) (*Entity, error) {
	phone, err := validate(input)
	if err != nil {
		metrics.IncInitiation("failed", string(ValidationError))
		return nil, err
	}

	reference := s.refs.Next()
	resp, err := s.gateway.Initiate(ctx, service.InitiateRequest{
		Amount:            input.Amount,
		PhoneNumber:       phone,
		ChannelID:         s.cfg.ChannelID,
		ExternalReference: reference,
		CallbackURL:       s.cfg.CallbackURL,
	})
	if err != nil {
		initErr := classify(reference, err)
		metrics.IncInitiation("failed", string(initErr.Classification))
		return nil, initErr
	}

	result := s.store.Create(ctx, &Entity{
		Amount:            input.Amount,
		PhoneNumber:       phone,
		ExternalReference: reference,
		CheckoutRequestID: resp.CheckoutRequestID,
	})

	switch result.Outcome {
	case StoredFallback:
		log.Warnw("payment initiated, stored in fallback cache only",
			"externalReference", reference,
			"checkoutRequestId", resp.CheckoutRequestID,
		)
	case Failed:
		// The push already reached the subscriber; the callback will be
		// journaled as unmatched.
		log.Errorw("payment initiated but could not be stored",
			"externalReference", reference,
			"checkoutRequestId", resp.CheckoutRequestID,
			"error", result.Err,
		)
	default:
		log.Infow("payment initiated",
			"externalReference", reference,
			"checkoutRequestId", resp.CheckoutRequestID,
			"amount", input.Amount.String(),
		)
	}
	metrics.IncInitiation("accepted", string(result.Outcome))

	if result.Payment != nil {
		return result.Payment, nil
	}
	return &Entity{
		Amount:            input.Amount,
		PhoneNumber:       phone,
		ExternalReference: reference,
		CheckoutRequestID: resp.CheckoutRequestID,
		Status:            StatusPending,
	}, nil
}

func validate(input InitiateInput) (string, error) {
	if input.Amount.LessThan(minimumAmount) {
		return "", &InitiationError{Classification: ValidationError, Message: "amount must be at least 1"}
	}
	if strings.TrimSpace(input.PhoneNumber) == "" {
		return "", &InitiationError{Classification: ValidationError, Message: "phone number is required"}
	}

	phone := NormalizePhone(input.PhoneNumber)
	if !isValidPhone(phone) {
		return "", &InitiationError{Classification: ValidationError, Message: "phone number must be a Kenyan mobile number"}
	}
	return phone, nil
}

func classify(reference string, err error) *InitiationError {
	var gwErr *service.GatewayError
	if !errors.As(err, &gwErr) {
		log.Errorw("gateway call failed", "externalReference", reference, "error", err)
		return &InitiationError{Classification: TransportError, Message: "payment gateway unavailable, please retry", Err: err}
	}

	switch gwErr.Kind {
	case service.KindRejection:
		log.Warnw("gateway rejected payment",
			"externalReference", reference,
			"status", gwErr.StatusCode,
			"reason", gwErr.Reason,
		)
		return &InitiationError{Classification: GatewayRejection, Message: gwErr.Reason, Err: err}
	case service.KindProtocol:
		log.Errorw("gateway returned an unreadable response",
			"externalReference", reference,
			"status", gwErr.StatusCode,
			"reason", gwErr.Reason,
			"body", string(gwErr.Body),
		)
		return &InitiationError{Classification: ProtocolError, Message: "payment gateway returned an unexpected response", Err: err}
	default:
		log.Warnw("gateway unreachable", "externalReference", reference, "reason", gwErr.Reason)
		return &InitiationError{Classification: TransportError, Message: "payment gateway unavailable, please retry", Err: err}
	}
}
