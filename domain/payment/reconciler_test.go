package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mpesa-checkout/infrastructure/config"
)

func TestReconciler_EndToEnd(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewCache(), NewCache(), nil)
	gateway := acceptingGateway("ckt_1")
	svc := NewService(gateway, store, NewReferenceGenerator(), config.Gateway{ChannelID: "911", CallbackURL: "https://cb"})
	reconciler := NewReconciler(store, &memoryJournal{})

	created, err := svc.Initiate(ctx, InitiateInput{Amount: decimal.NewFromInt(100), PhoneNumber: "0712345678"})
	require.NoError(t, err)
	require.Equal(t, "254712345678", created.PhoneNumber)
	require.Equal(t, "ckt_1", created.CheckoutRequestID)
	require.Equal(t, StatusPending, created.Status)

	result, err := reconciler.OnCallback(ctx, []byte(`{"checkoutRequestId":"ckt_1","resultCode":0,"mpesaReceipt":"QAX123"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
	require.Equal(t, StatusSuccess, result.Status)

	found, err := store.FindByReference(ctx, created.ExternalReference)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, found.Status)
	require.Equal(t, "QAX123", found.MpesaReceipt)
	require.Equal(t, "0", found.ResultCode)

	result, err = reconciler.OnCallback(ctx, []byte(`{"checkoutRequestId":"ckt_1","resultCode":0,"mpesaReceipt":"QAX123"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, result.Outcome)

	found, err = store.FindByReference(ctx, "ckt_1")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, found.Status)
	require.Equal(t, "QAX123", found.MpesaReceipt)
	require.Equal(t, "0", found.ResultCode)

	result, err = reconciler.OnCallback(ctx, []byte(`{"checkoutRequestId":"ckt_1","resultCode":1032}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, result.Outcome)

	found, err = store.FindByReference(ctx, "ckt_1")
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, found.Status)
}

func TestReconciler_UnmatchedIsAcknowledgedAndJournaled(t *testing.T) {
	journal := &memoryJournal{}
	reconciler := NewReconciler(NewStore(NewCache(), NewCache(), nil), journal)

	body := []byte(`{"checkoutRequestId":"ckt_unknown","resultCode":0}`)
	result, err := reconciler.OnCallback(context.Background(), body)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnmatched, result.Outcome)

	entries, _ := journal.List(context.Background(), DateRange{})
	require.Len(t, entries, 1)
	require.Equal(t, "ckt_unknown", entries[0].CheckoutRequestID)
	require.NotEmpty(t, entries[0].ID)
	require.JSONEq(t, string(body), string(entries[0].Payload))
}

func TestReconciler_MissingCheckoutIDIsUnmatched(t *testing.T) {
	reconciler := NewReconciler(NewStore(NewCache(), NewCache(), nil), nil)

	result, err := reconciler.OnCallback(context.Background(), []byte(`{"resultCode":0}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnmatched, result.Outcome)
}

func TestReconciler_NonTerminalCallbackIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewCache(), NewCache(), nil)
	store.Create(ctx, pendingPayment("INV-1", "ckt_1"))
	reconciler := NewReconciler(store, nil)

	result, err := reconciler.OnCallback(ctx, []byte(`{"checkoutRequestId":"ckt_1","status":"processing"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, result.Outcome)

	found, _ := store.FindByReference(ctx, "ckt_1")
	require.Equal(t, StatusPending, found.Status)
}

func TestReconciler_UnknownCodeFailsWithRawCode(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewCache(), NewCache(), nil)
	store.Create(ctx, pendingPayment("INV-1", "ckt_1"))

	result, err := NewReconciler(store, nil).OnCallback(ctx, []byte(`{"CheckoutRequestID":"ckt_1","ResultCode":"4242"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
	require.Equal(t, StatusFailed, result.Payment.Status)
	require.Equal(t, "4242", result.Payment.ResultCode)
}

func TestReconciler_CallbackAppliesToFallbackOnlyPayment(t *testing.T) {
	ctx := context.Background()
	store := NewStore(unavailableRepository{}, NewCache(), nil)
	require.Equal(t, StoredFallback, store.Create(ctx, pendingPayment("INV-1", "ckt_1")).Outcome)

	result, err := NewReconciler(store, nil).OnCallback(ctx, []byte(`{"checkoutRequestId":"ckt_1","resultCode":1032}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, result.Outcome)
	require.Equal(t, StatusCancelled, result.Status)
}

func TestReconciler_InvalidBody(t *testing.T) {
	_, err := NewReconciler(NewStore(NewCache(), NewCache(), nil), nil).OnCallback(context.Background(), []byte("garbage"))
	require.ErrorIs(t, err, ErrInvalidCallback)
}
