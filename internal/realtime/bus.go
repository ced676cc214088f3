package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"supportdesk/internal/typing"
)

// Bus is the push channel: Redis pub/sub with one channel per ticket for
// message inserts, one per ticket for typing presence, and a desk-wide
// feed for ticket lifecycle events. Subscriptions return a cancel func
// that closes the underlying pubsub and stops the delivery goroutine.
type Bus struct {
	rdb *redis.Client
}

func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

func (b *Bus) publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, data).Err()
}

func (b *Bus) PublishMessage(ctx context.Context, ev MessageEvent) error {
	return b.publish(ctx, ticketChannelPrefix+ev.TicketID, ev)
}

func (b *Bus) PublishTyping(ctx context.Context, ticketID string, ev typing.Event) error {
	return b.publish(ctx, typingChannelPrefix+ticketID, ev)
}

func (b *Bus) PublishTicketEvent(ctx context.Context, ev TicketEvent) error {
	return b.publish(ctx, ticketsChannel, ev)
}

// SubscribeInserts delivers a notification for every new-message event on
// the ticket's channel. The payload is not surfaced: consumers reconcile
// by re-fetching, which keeps delivery idempotent.
func (b *Bus) SubscribeInserts(ticketID string, fn func()) (func(), error) {
	pubsub := b.rdb.Subscribe(context.Background(), ticketChannelPrefix+ticketID)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}
	go func() {
		for range pubsub.Channel() {
			fn()
		}
	}()
	return func() { pubsub.Close() }, nil
}

func (b *Bus) SubscribeTyping(ticketID string, fn func(typing.Event)) (func(), error) {
	pubsub := b.rdb.Subscribe(context.Background(), typingChannelPrefix+ticketID)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}
	go func() {
		for msg := range pubsub.Channel() {
			var ev typing.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("realtime: bad typing payload: %v", err)
				continue
			}
			fn(ev)
		}
	}()
	return func() { pubsub.Close() }, nil
}

func (b *Bus) SubscribeTickets(fn func(TicketEvent)) (func(), error) {
	pubsub := b.rdb.Subscribe(context.Background(), ticketsChannel)
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}
	go func() {
		for msg := range pubsub.Channel() {
			var ev TicketEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("realtime: bad ticket payload: %v", err)
				continue
			}
			fn(ev)
		}
	}()
	return func() { pubsub.Close() }, nil
}
