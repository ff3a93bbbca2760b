package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Bus over a pub/sub channel, for agent instances spread across
// processes or hosts. One receive goroutine fans messages out to local
// subscribers.
type Redis struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedis(client *redis.Client, channel string, log zerolog.Logger) *Redis {
	return &Redis{
		client:  client,
		channel: channel,
		log:     log,
		subs:    map[int]func(Event){},
	}
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(fn func(Event)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubsub == nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.pubsub = r.client.Subscribe(ctx, r.channel)
		r.cancel = cancel
		r.done = make(chan struct{})
		go r.receive(r.pubsub.Channel())
	}

	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}, nil
}

func (r *Redis) receive(msgs <-chan *redis.Message) {
	defer close(r.done)

	for msg := range msgs {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			r.log.Warn().Err(err).Msg("drop malformed broadcast payload")
			continue
		}

		r.mu.Lock()
		fns := make([]func(Event), 0, len(r.subs))
		for _, fn := range r.subs {
			fns = append(fns, fn)
		}
		r.mu.Unlock()

		for _, fn := range fns {
			fn(ev)
		}
	}
}

func (r *Redis) Close() error {
	r.mu.Lock()
	pubsub := r.pubsub
	cancel := r.cancel
	done := r.done
	r.pubsub = nil
	r.subs = map[int]func(Event){}
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	<-done
	return err
}
