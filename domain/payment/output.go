package payment

import "github.com/shopspring/decimal"

type InitiateInput struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phoneNumber"`
}

type InitiateOutput struct {
	Success           bool    `json:"success"`
	ExternalReference string  `json:"externalReference"`
	CheckoutRequestID string  `json:"checkoutRequestId"`
	Amount            float64 `json:"amount"`
	PhoneNumber       string  `json:"phoneNumber"`
}

type FailureOutput struct {
	Success             bool           `json:"success"`
	Message             string         `json:"message"`
	ErrorClassification Classification `json:"errorClassification"`
}

// CallbackAck is the body the gateway expects back from a callback.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

type HealthOutput struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}

func newInitiateOutput(p *Entity) InitiateOutput {
	return InitiateOutput{
		Success:           true,
		ExternalReference: p.ExternalReference,
		CheckoutRequestID: p.CheckoutRequestID,
		Amount:            p.Amount.InexactFloat64(),
		PhoneNumber:       p.PhoneNumber,
	}
}
