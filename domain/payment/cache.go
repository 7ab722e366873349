package payment

import (
	"context"
	"sync"
	"time"

	"mpesa-checkout/infrastructure/metrics"
)

// Cache is the process-local fallback backend. It holds copies, never the
// caller's pointers, and indexes every entry by both of its keys.
type Cache struct {
	mu          sync.RWMutex
	byReference map[string]*Entity
	byCheckout  map[string]string
	now         func() time.Time
}

func NewCache() *Cache {
	return newCache(time.Now)
}

func newCache(now func() time.Time) *Cache {
	return &Cache{
		byReference: make(map[string]*Entity),
		byCheckout:  make(map[string]string),
		now:         now,
	}
}

func (c *Cache) Insert(_ context.Context, payment *Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byReference[payment.ExternalReference]; exists {
		return ErrDuplicateKey
	}
	if payment.CheckoutRequestID != "" {
		if _, exists := c.byCheckout[payment.CheckoutRequestID]; exists {
			return ErrDuplicateKey
		}
	}

	stored := *payment
	c.byReference[stored.ExternalReference] = &stored
	if stored.CheckoutRequestID != "" {
		c.byCheckout[stored.CheckoutRequestID] = stored.ExternalReference
	}

	metrics.SetCacheEntries(len(c.byReference))
	return nil
}

func (c *Cache) FindByReference(_ context.Context, key string) (*Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.lookup(key)
	if !ok {
		return nil, ErrPaymentNotFound
	}
	found := *p
	return &found, nil
}

func (c *Cache) ApplyTerminalStatus(
	_ context.Context, checkoutRequestID string, status Status, receipt, resultCode string,
) (*Entity, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref, ok := c.byCheckout[checkoutRequestID]
	if !ok {
		return nil, false, ErrPaymentNotFound
	}
	p, ok := c.byReference[ref]
	if !ok {
		return nil, false, ErrPaymentNotFound
	}

	applied := p.applyTerminal(status, receipt, resultCode, c.now().UTC())
	result := *p
	return &result, applied, nil
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byReference)
}

// EvictCreatedBefore drops every entry created before cutoff, whatever its
// status. Entries without a creation time cannot be aged and are dropped too.
func (c *Cache) EvictCreatedBefore(cutoff time.Time) (evicted, malformed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ref, p := range c.byReference {
		switch {
		case p == nil || p.CreatedAt.IsZero():
			malformed++
		case p.CreatedAt.Before(cutoff):
			evicted++
		default:
			continue
		}

		delete(c.byReference, ref)
		if p != nil && p.CheckoutRequestID != "" {
			delete(c.byCheckout, p.CheckoutRequestID)
		}
	}

	for checkout, ref := range c.byCheckout {
		if _, ok := c.byReference[ref]; !ok {
			delete(c.byCheckout, checkout)
		}
	}

	metrics.SetCacheEntries(len(c.byReference))
	return evicted, malformed
}

func (c *Cache) lookup(key string) (*Entity, bool) {
	if p, ok := c.byReference[key]; ok {
		return p, true
	}
	if ref, ok := c.byCheckout[key]; ok {
		p, ok := c.byReference[ref]
		return p, ok
	}
	return nil, false
}
