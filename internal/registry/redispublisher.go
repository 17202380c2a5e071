package registry

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel used for cross-instance registry
// change notifications, enabled by setting ROUTER_REGISTRY_PEERS. This
// keeps multiple router processes' registries coherent; it is distinct
// from load-balancing across equally-ranked backends, which stays
// out of scope.
const RedisChannel = "router:registry:changes"

// RedisPublisher publishes Diffs to peer router instances over Redis
// pub/sub. It never gates or blocks a refresh: publish failures are
// logged by the caller and otherwise ignored.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing *redis.Client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish serializes diff as JSON and publishes it to RedisChannel.
func (p *RedisPublisher) Publish(ctx context.Context, diff Diff) error {
	if p == nil || p.client == nil {
		return nil
	}
	buf, err := json.Marshal(diff)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, RedisChannel, buf).Err()
}

// Subscribe starts a goroutine that applies remote diffs to the local
// registry's entries map directly (bypassing probing) so that peers
// converge without every instance needing to reach every runtime. The
// returned function stops the subscription.
func (r *Registry) SubscribeRemotePeer(ctx context.Context, client *redis.Client) (stop func(), err error) {
	sub := client.Subscribe(ctx, RedisChannel)
	ch := sub.Channel()
	go func() {
		for msg := range ch {
			var diff Diff
			if jsonErr := json.Unmarshal([]byte(msg.Payload), &diff); jsonErr != nil {
				r.logger.Warn("discarding malformed peer registry diff", "error", jsonErr)
				continue
			}
			r.applyRemoteDiff(diff)
		}
	}()
	return func() { _ = sub.Close() }, nil
}

// applyRemoteDiff merges a peer's diff into the local table under the
// write lock, without re-probing or re-persisting (the peer already did
// that); it still fires local observers so UIs stay in sync.
func (r *Registry) applyRemoteDiff(diff Diff) {
	r.mu.Lock()
	for _, e := range diff.Added {
		r.entries[e.Ref()] = e
	}
	for _, e := range diff.Updated {
		r.entries[e.Ref()] = e
	}
	for _, e := range diff.Removed {
		delete(r.entries, e.Ref())
	}
	r.mu.Unlock()
	r.fireObservers(diff)
}
