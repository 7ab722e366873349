package payment

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"

	"mpesa-checkout/infrastructure/config"
	"mpesa-checkout/infrastructure/queue"
)

const (
	consumerQueue = "payment-resync"

	defaultAckWait     = 30 * time.Second
	resyncRetryDelay   = 5 * time.Second
	resyncWriteTimeout = 10 * time.Second
)

type decision int

const (
	ack decision = iota
	retry
	drop
)

type IConsumer interface {
	StartProcess() error
	Close()
}

// resyncer copies a fallback-only payment into the durable store, then
// replays its terminal status if it has one.
type resyncer struct {
	durable IRepository
	cache   IRepository
}

func (r *resyncer) Handle(ctx context.Context, data []byte) decision {
	var msg resyncMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.ExternalReference == "" {
		log.Warnw("dropping malformed resync message", "error", err)
		return drop
	}

	payment, err := r.cache.FindByReference(ctx, msg.ExternalReference)
	if err != nil {
		log.Warnw("resync skipped, payment no longer cached", "externalReference", msg.ExternalReference)
		return drop
	}

	if err := r.durable.Insert(ctx, payment); err != nil && !errors.Is(err, ErrDuplicateKey) {
		log.Debugw("resync insert failed, will retry", "externalReference", msg.ExternalReference, "error", err)
		return retry
	}

	if payment.Status.IsTerminal() && payment.CheckoutRequestID != "" {
		_, _, err := r.durable.ApplyTerminalStatus(ctx, payment.CheckoutRequestID, payment.Status, payment.MpesaReceipt, payment.ResultCode)
		if err != nil {
			log.Debugw("resync status update failed, will retry", "externalReference", msg.ExternalReference, "error", err)
			return retry
		}
	}

	log.Infow("payment resynced to durable store",
		"externalReference", payment.ExternalReference,
		"status", payment.Status,
	)
	return ack
}

type natsConsumer struct {
	paymentQueue  *queue.PaymentQueue
	resyncer      *resyncer
	ctx           context.Context
	cancelCtx     context.CancelFunc
	maxAckPending int
	maxDeliver    int
}

func NewNatsConsumer(paymentQueue *queue.PaymentQueue, durable, cache IRepository, cfg config.Nats) IConsumer {
	ctx, cancelCtx := context.WithCancel(context.Background())

	return &natsConsumer{
		paymentQueue:  paymentQueue,
		resyncer:      &resyncer{durable: durable, cache: cache},
		ctx:           ctx,
		cancelCtx:     cancelCtx,
		maxAckPending: cfg.MaxAckPending,
		maxDeliver:    cfg.MaxDeliver,
	}
}

func (c *natsConsumer) StartProcess() error {
	sub, err := c.paymentQueue.JetStream.QueueSubscribeSync(
		c.paymentQueue.Subject,
		consumerQueue,
		nats.AckWait(defaultAckWait),
		nats.ManualAck(),
		nats.DeliverAll(),
		nats.MaxDeliver(c.maxDeliver),
		nats.MaxAckPending(c.maxAckPending),
	)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
			msg, err := sub.NextMsgWithContext(c.ctx)
			if err != nil {
				continue
			}
			go c.processMessage(msg)
		}
	}
}

func (c *natsConsumer) processMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(c.ctx, resyncWriteTimeout)
	defer cancel()

	switch c.resyncer.Handle(ctx, msg.Data) {
	case ack:
		msg.Ack()
	case retry:
		msg.NakWithDelay(resyncRetryDelay)
	default:
		msg.Term()
	}
}

func (c *natsConsumer) Close() {
	c.cancelCtx()
}
