package service

import "github.com/shopspring/decimal"

const Provider = "m-pesa"

type InitiateRequest struct {
	Amount            decimal.Decimal
	PhoneNumber       string
	ChannelID         string
	ExternalReference string
	CallbackURL       string
}

type InitiateResponse struct {
	CheckoutRequestID string
	RawBody           []byte
}

type postInitiate struct {
	Amount            float64 `json:"amount"`
	PhoneNumber       string  `json:"phone_number"`
	ChannelID         string  `json:"channel_id"`
	Provider          string  `json:"provider"`
	ExternalReference string  `json:"external_reference"`
	CallbackURL       string  `json:"callback_url"`
}
