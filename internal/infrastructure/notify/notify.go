package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Channel is the Redis pub/sub channel realtime clients subscribe to.
const Channel = "greencoin:events"

// Event types.
const (
	BatchCreated    = "batch.created"
	LedgerAppended  = "ledger.appended"
	CreditMinted    = "credit.minted"
	CreditSold      = "credit.sold"
	CreditRetired   = "credit.retired"
	SellRequestSold = "sell_request.sold"
)

type Event struct {
	Type    string      `json:"type"`
	ActorID string      `json:"actor_id,omitempty"`
	Data    interface{} `json:"data"`
	At      time.Time   `json:"at"`
}

// Publisher delivers realtime events. Delivery is at-most-once with no ordering guarantee.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher publishes JSON events on Channel.
type RedisPublisher struct {
	Rdb *redis.Client
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Rdb.Publish(ctx, Channel, b).Err()
}

// Send publishes best-effort: a nil publisher is a no-op and failures are only logged.
func Send(ctx context.Context, p Publisher, log zerolog.Logger, ev Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Msg("notify: publish failed")
	}
}
