// Package redisnotify broadcasts docstore change notifications over redis pub/sub so listeners in other
// replicas re-read collections written elsewhere.
package redisnotify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "storeadmin:docstore:changes"

type message struct {
	Origin      string   `json:"origin"`
	Collections []string `json:"collections"`
}

// Notifier implements docstore.Notifier. Messages published by this process are ignored on receipt because the
// store already woke local listeners.
type Notifier struct {
	client  *redis.Client
	channel string
	origin  string
	log     *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

func New(client *redis.Client, channel string, log *zap.Logger) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log.Named("docstore.redisnotify"),
	}
}

func (n *Notifier) Publish(ctx context.Context, collections []string) error {
	if len(collections) == 0 {
		return nil
	}
	payload, err := json.Marshal(message{Origin: n.origin, Collections: collections})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

func (n *Notifier) Subscribe(ctx context.Context, fn func(collections []string)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pubsub != nil {
		return errors.New("redisnotify: already subscribed")
	}
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	n.pubsub = pubsub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var decoded message
				if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
					n.log.Warn("discarding malformed change notification", zap.Error(err))
					continue
				}
				if decoded.Origin == n.origin {
					continue
				}
				fn(decoded.Collections)
			}
		}
	}()
	return nil
}

func (n *Notifier) Close() error {
	n.mu.Lock()
	pubsub := n.pubsub
	n.pubsub = nil
	n.mu.Unlock()
	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	n.wg.Wait()
	return err
}
