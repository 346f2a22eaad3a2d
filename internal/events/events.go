// Package events relays the render commands of a running action to any
// number of watchers of the same playthrough.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one event as sent on the action stream
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Hub fans out playthrough events. Subscribe returns a channel that is
// closed when ctx ends or the hub shuts down.
type Hub interface {
	Publish(ctx context.Context, id uuid.UUID, event string, data any) error
	Subscribe(ctx context.Context, id uuid.UUID) (<-chan Message, error)
}

func newMessage(event string, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	return Message{Event: event, Data: raw}, nil
}

func channelName(id uuid.UUID) string {
	return "playthrough-events:" + id.String()
}

// RedisHub publishes through Redis Pub/Sub so watchers may be connected to
// any API instance.
type RedisHub struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Hub = (*RedisHub)(nil)

func NewRedisHub(client *redis.Client, logger *slog.Logger) *RedisHub {
	return &RedisHub{client: client, logger: logger}
}

func (h *RedisHub) Publish(ctx context.Context, id uuid.UUID, event string, data any) error {
	msg, err := newMessage(event, data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := channelName(id)
	if err := h.client.Publish(ctx, channel, payload).Err(); err != nil {
		h.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}
	h.logger.Debug("Event published", "channel", channel, "event", event)
	return nil
}

func (h *RedisHub) Subscribe(ctx context.Context, id uuid.UUID) (<-chan Message, error) {
	channel := channelName(id)
	sub := h.client.Subscribe(ctx, channel)
	// Wait for the subscription so no event published after we return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					h.logger.Warn("Dropping malformed event", "channel", channel, "error", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// MemoryHub is a single-process Hub.
type MemoryHub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Message]struct{}
}

var _ Hub = (*MemoryHub)(nil)

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uuid.UUID]map[chan Message]struct{})}
}

// Publish never blocks; a watcher that falls behind misses events.
func (h *MemoryHub) Publish(ctx context.Context, id uuid.UUID, event string, data any) error {
	msg, err := newMessage(event, data)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, id uuid.UUID) (<-chan Message, error) {
	ch := make(chan Message, 64)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan Message]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[id], ch)
		if len(h.subs[id]) == 0 {
			delete(h.subs, id)
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Watchers reports how many subscriptions are open for id.
func (h *MemoryHub) Watchers(id uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
