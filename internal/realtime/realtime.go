package realtime

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Change is one store mutation notification. Clients re-fetch the named
// collection snapshot when they receive it; the payload carries no record
// data on purpose.
type Change struct {
	EventID    string `json:"event_id"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Action     string `json:"action"` // created | updated | deleted
}

// Bus fans mutation notifications out to subscribed UI streams. Publish
// must never fail a mutation: implementations log and move on.
type Bus interface {
	Publish(ctx context.Context, c Change)
	Subscribe(ctx context.Context, eventID string) (<-chan Change, func())
}

func channelFor(eventID string) string { return "sync:" + eventID }

// RedisBus carries changes over redis pub/sub so every service instance
// sees every mutation.
type RedisBus struct {
	client *redis.Client
	log    *zerolog.Logger
}

func NewRedisBus(client *redis.Client, log *zerolog.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

// NewRedisClient builds a client from the environment, matching the
// REDIS_URL / REDIS_PASSWORD / REDIS_DB convention.
func NewRedisClient() *redis.Client {
	db := 0
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		db = v
	}
	return redis.NewClient(&redis.Options{
		Addr:     os.Getenv("REDIS_URL"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})
}

func (b *RedisBus) Publish(ctx context.Context, c Change) {
	payload, err := json.Marshal(c)
	if err != nil {
		b.log.Error().Err(err).Msg("failed to marshal change notification")
		return
	}
	if err := b.client.Publish(ctx, channelFor(c.EventID), payload).Err(); err != nil {
		b.log.Warn().Err(err).Str("event_id", c.EventID).Msg("failed to publish change notification")
	}
}

func (b *RedisBus) Subscribe(ctx context.Context, eventID string) (<-chan Change, func()) {
	sub := b.client.Subscribe(ctx, channelFor(eventID))
	out := make(chan Change, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				b.log.Warn().Err(err).Msg("failed to unmarshal change notification")
				continue
			}
			select {
			case out <- c:
			default:
				// slow consumer; drop rather than block the reader
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}

// LocalBus is the in-process bus used by the memory storage mode and by
// tests.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan Change]struct{})}
}

func (b *LocalBus) Publish(_ context.Context, c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[c.EventID] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (b *LocalBus) Subscribe(_ context.Context, eventID string) (<-chan Change, func()) {
	ch := make(chan Change, 16)
	b.mu.Lock()
	if b.subs[eventID] == nil {
		b.subs[eventID] = make(map[chan Change]struct{})
	}
	b.subs[eventID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs[eventID], ch)
		b.mu.Unlock()
		close(ch)
	}
}
