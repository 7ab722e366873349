package service

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCheckoutID = errors.New("response has no CheckoutRequestID")
	ErrUnexpectedStatus  = errors.New("unexpected response status")
)

type ErrorKind string

const (
	// KindTransport: the request never got an answer; retry with a fresh reference.
	KindTransport ErrorKind = "TRANSPORT_ERROR"
	// KindRejection: the gateway answered with an error status.
	KindRejection ErrorKind = "GATEWAY_REJECTION"
	// KindProtocol: the gateway answered 2xx with something we cannot read.
	KindProtocol ErrorKind = "PROTOCOL_ERROR"
)

type GatewayError struct {
	Kind       ErrorKind
	Reason     string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Reason)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same payment may be sent again
// under a new external reference.
func (e *GatewayError) Retryable() bool {
	return e.Kind == KindTransport
}
