package queue

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/nats-io/nats.go"
)

const (
	subject    = "payments.resync"
	streamName = "Payments-Resync"
)

// PaymentQueue carries external references of payments that only reached
// the fallback cache, so they can be replayed into the durable store.
type PaymentQueue struct {
	JetStream  nats.JetStreamContext
	NatsConn   *nats.Conn
	Subject    string
	StreamName string
}

func NewPaymentQueue(natsURL string) (*PaymentQueue, error) {
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	natsConn, err := nats.Connect(natsURL, nats.Name("mpesa-checkout"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}

	js, err := natsConn.JetStream()
	if err != nil {
		natsConn.Close()
		return nil, err
	}

	queue := &PaymentQueue{
		NatsConn:   natsConn,
		JetStream:  js,
		Subject:    subject,
		StreamName: streamName,
	}

	if err = queue.createStream(); err != nil {
		natsConn.Close()
		return nil, err
	}
	return queue, nil
}

// Publish enqueues data; msgID feeds JetStream's duplicate window so the
// same reference published twice in quick succession is stored once.
func (q *PaymentQueue) Publish(ctx context.Context, msgID string, data []byte) error {
	_, err := q.JetStream.Publish(q.Subject, data, nats.Context(ctx), nats.MsgId(msgID))
	return err
}

func (q *PaymentQueue) Close() {
	q.NatsConn.Close()
}

func (q *PaymentQueue) createStream() error {
	now := time.Now().UTC()
	streamCfg := nats.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subject},
		Retention:  nats.WorkQueuePolicy,
		Storage:    nats.FileStorage,
		MaxAge:     24 * time.Hour,
		Duplicates: 2 * time.Minute,
	}
	stream, err := q.JetStream.AddStream(&streamCfg)
	if err != nil {
		return err
	}

	if stream.Created.After(now) {
		log.Info("Stream created")
	}
	return nil
}
