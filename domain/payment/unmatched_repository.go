package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	unmatchedDataKey    = "callbacks:unmatched:data"
	unmatchedHistoryKey = "callbacks:unmatched:history"
)

type UnmatchedCallback struct {
	ID                string          `json:"id"`
	CheckoutRequestID string          `json:"checkoutRequestId,omitempty"`
	Reason            string          `json:"reason"`
	Payload           json.RawMessage `json:"payload"`
	ReceivedAt        time.Time       `json:"receivedAt"`
}

type DateRange struct {
	From *time.Time
	To   *time.Time
}

// IUnmatchedJournal keeps callbacks no payment could be found for, for
// operators to follow up on.
type IUnmatchedJournal interface {
	Record(ctx context.Context, entry UnmatchedCallback) error
	List(ctx context.Context, dateRange DateRange) ([]UnmatchedCallback, error)
}

type unmatchedJournal struct {
	client *redis.Client
}

func NewUnmatchedJournal(client *redis.Client) IUnmatchedJournal {
	return &unmatchedJournal{client}
}

func (r *unmatchedJournal) Record(ctx context.Context, entry UnmatchedCallback) error {
	if !json.Valid(entry.Payload) {
		quoted, err := json.Marshal(string(entry.Payload))
		if err != nil {
			return err
		}
		entry.Payload = quoted
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, unmatchedDataKey, entry.ID, data)
	pipe.ZAdd(ctx, unmatchedHistoryKey, redis.Z{Score: float64(entry.ReceivedAt.UnixMilli()), Member: entry.ID})

	_, err = pipe.Exec(ctx)
	return err
}

func (r *unmatchedJournal) List(ctx context.Context, dateRange DateRange) ([]UnmatchedCallback, error) {
	var (
		from = int64(0)
		to   = time.Now().UTC().UnixMilli()
	)

	if dateRange.From != nil {
		from = dateRange.From.UnixMilli()
	}
	if dateRange.To != nil {
		to = dateRange.To.UnixMilli()
	}

	ids, err := r.client.ZRangeByScore(ctx, unmatchedHistoryKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from),
		Max: fmt.Sprintf("%d", to),
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []UnmatchedCallback{}, nil
	}

	values, err := r.client.HMGet(ctx, unmatchedDataKey, ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]UnmatchedCallback, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		raw, canCast := v.(string)
		if !canCast {
			return nil, fmt.Errorf("invalid type for unmatched callback")
		}

		var entry UnmatchedCallback
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("invalid unmatched callback: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
