package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func pendingPayment(ref, checkout string) *Entity {
	return &Entity{
		Amount:            decimal.NewFromInt(100),
		PhoneNumber:       "254712345678",
		ExternalReference: ref,
		CheckoutRequestID: checkout,
		Status:            StatusPending,
		CreatedAt:         testEpoch,
		UpdatedAt:         testEpoch,
	}
}

func TestCache_FindsByEitherKey(t *testing.T) {
	cache := newCache(func() time.Time { return testEpoch })
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, pendingPayment("INV-1", "ckt_1")))

	byRef, err := cache.FindByReference(ctx, "INV-1")
	require.NoError(t, err)
	byCheckout, err := cache.FindByReference(ctx, "ckt_1")
	require.NoError(t, err)
	require.Equal(t, byRef, byCheckout)

	_, err = cache.FindByReference(ctx, "nope")
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCache_RejectsDuplicateKeys(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, pendingPayment("INV-1", "ckt_1")))
	require.ErrorIs(t, cache.Insert(ctx, pendingPayment("INV-1", "ckt_2")), ErrDuplicateKey)
	require.ErrorIs(t, cache.Insert(ctx, pendingPayment("INV-2", "ckt_1")), ErrDuplicateKey)
	require.Equal(t, 1, cache.Len())
}

func TestCache_ReturnsCopies(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	original := pendingPayment("INV-1", "ckt_1")
	require.NoError(t, cache.Insert(ctx, original))
	original.Status = StatusSuccess

	found, err := cache.FindByReference(ctx, "INV-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, found.Status)

	found.Status = StatusFailed
	again, _ := cache.FindByReference(ctx, "INV-1")
	require.Equal(t, StatusPending, again.Status)
}

func TestCache_ApplyTerminalStatusOnce(t *testing.T) {
	later := testEpoch.Add(time.Minute)
	cache := newCache(func() time.Time { return later })
	ctx := context.Background()
	require.NoError(t, cache.Insert(ctx, pendingPayment("INV-1", "ckt_1")))

	p, applied, err := cache.ApplyTerminalStatus(ctx, "ckt_1", StatusSuccess, "QAX123", "0")
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, StatusSuccess, p.Status)
	require.Equal(t, "QAX123", p.MpesaReceipt)
	require.Equal(t, later, p.UpdatedAt)

	p, applied, err = cache.ApplyTerminalStatus(ctx, "ckt_1", StatusFailed, "", "1")
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, StatusSuccess, p.Status)
	require.Equal(t, "0", p.ResultCode)

	_, _, err = cache.ApplyTerminalStatus(ctx, "ckt_unknown", StatusSuccess, "", "0")
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestCache_ConcurrentCallbacksFirstWriterWins(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()
	require.NoError(t, cache.Insert(ctx, pendingPayment("INV-1", "ckt_1")))

	statuses := []Status{StatusSuccess, StatusFailed, StatusCancelled}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied []Status
	)
	for i := range 30 {
		wg.Add(1)
		go func(status Status) {
			defer wg.Done()
			_, ok, err := cache.ApplyTerminalStatus(ctx, "ckt_1", status, "", "")
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				applied = append(applied, status)
				mu.Unlock()
			}
		}(statuses[i%len(statuses)])
	}
	wg.Wait()

	require.Len(t, applied, 1)
	final, err := cache.FindByReference(ctx, "ckt_1")
	require.NoError(t, err)
	require.Equal(t, applied[0], final.Status)
}

func TestCache_EvictCreatedBefore(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	old := pendingPayment("INV-old", "ckt_old")
	old.Status = StatusSuccess
	require.NoError(t, cache.Insert(ctx, old))

	fresh := pendingPayment("INV-new", "ckt_new")
	fresh.CreatedAt = testEpoch.Add(time.Hour)
	require.NoError(t, cache.Insert(ctx, fresh))

	broken := pendingPayment("INV-broken", "ckt_broken")
	broken.CreatedAt = time.Time{}
	require.NoError(t, cache.Insert(ctx, broken))

	evicted, malformed := cache.EvictCreatedBefore(testEpoch.Add(time.Minute))
	require.Equal(t, 1, evicted)
	require.Equal(t, 1, malformed)
	require.Equal(t, 1, cache.Len())

	_, err := cache.FindByReference(ctx, "ckt_old")
	require.ErrorIs(t, err, ErrPaymentNotFound)
	_, err = cache.FindByReference(ctx, "ckt_new")
	require.NoError(t, err)
}
