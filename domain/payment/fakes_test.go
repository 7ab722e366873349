package payment

import (
	"context"
	"errors"
	"sync"

	"mpesa-checkout/infrastructure/service"
)

var errDatabaseDown = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// unavailableRepository fails every call the way an unreachable database does.
type unavailableRepository struct{}

func (unavailableRepository) Insert(context.Context, *Entity) error { return errDatabaseDown }

func (unavailableRepository) FindByReference(context.Context, string) (*Entity, error) {
	return nil, errDatabaseDown
}

func (unavailableRepository) ApplyTerminalStatus(context.Context, string, Status, string, string) (*Entity, bool, error) {
	return nil, false, errDatabaseDown
}

// switchableRepository is a Cache that can be taken offline.
type switchableRepository struct {
	*Cache
	mu   sync.Mutex
	down bool
}

func newSwitchableRepository() *switchableRepository {
	return &switchableRepository{Cache: NewCache()}
}

func (r *switchableRepository) setDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

func (r *switchableRepository) isDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.down
}

func (r *switchableRepository) Insert(ctx context.Context, p *Entity) error {
	if r.isDown() {
		return errDatabaseDown
	}
	return r.Cache.Insert(ctx, p)
}

func (r *switchableRepository) FindByReference(ctx context.Context, key string) (*Entity, error) {
	if r.isDown() {
		return nil, errDatabaseDown
	}
	return r.Cache.FindByReference(ctx, key)
}

func (r *switchableRepository) ApplyTerminalStatus(
	ctx context.Context, checkoutRequestID string, status Status, receipt, resultCode string,
) (*Entity, bool, error) {
	if r.isDown() {
		return nil, false, errDatabaseDown
	}
	return r.Cache.ApplyTerminalStatus(ctx, checkoutRequestID, status, receipt, resultCode)
}

type published struct {
	msgID string
	data  []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msgID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{msgID: msgID, data: data})
	return f.err
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

type fakeGateway struct {
	initiateFn func(ctx context.Context, input service.InitiateRequest) (*service.InitiateResponse, error)
	calls      int
	last       service.InitiateRequest
}

func (f *fakeGateway) Initiate(ctx context.Context, input service.InitiateRequest) (*service.InitiateResponse, error) {
	f.calls++
	f.last = input
	return f.initiateFn(ctx, input)
}

func acceptingGateway(checkoutID string) *fakeGateway {
	return &fakeGateway{
		initiateFn: func(context.Context, service.InitiateRequest) (*service.InitiateResponse, error) {
			return &service.InitiateResponse{CheckoutRequestID: checkoutID}, nil
		},
	}
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []UnmatchedCallback
}

func (j *memoryJournal) Record(_ context.Context, entry UnmatchedCallback) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) List(context.Context, DateRange) ([]UnmatchedCallback, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]UnmatchedCallback{}, j.entries...), nil
}
