// Package registry tracks running sessions by chat id so that a stop request
// can reach them, on this instance or, through Redis, on any other.
package registry

import (
	"context"
	"fmt"
	"sync"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Cancellable is the part of a session the registry needs
type Cancellable interface {
	Cancel()
}

type entry struct {
	token   uint64
	session Cancellable
}

// Registry maps chat ids to their running session
type Registry struct {
	mu       sync.Mutex
	sessions map[string]entry
	next     uint64

	redis   *redis.Client
	channel string
}

// New creates a registry. A nil client keeps stops local to this instance.
func New(client *redis.Client, channel string) *Registry {
	return &Registry{
		sessions: make(map[string]entry),
		redis:    client,
		channel:  channel,
	}
}

// Register records sess as the running session for key. A session already
// running under key is cancelled. The returned release removes the entry
// only if it still belongs to sess.
func (r *Registry) Register(key string, sess Cancellable) (release func()) {
	r.mu.Lock()
	r.next++
	token := r.next
	prev, hadPrev := r.sessions[key]
	r.sessions[key] = entry{token: token, session: sess}
	r.mu.Unlock()

	if hadPrev {
		fiberlog.Infof("Superseding running session for chat %s", key)
		prev.session.Cancel()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.sessions[key]; ok && cur.token == token {
				delete(r.sessions, key)
			}
		})
	}
}

// Len returns the number of running sessions on this instance
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// cancelLocal cancels the session registered under key, if any
func (r *Registry) cancelLocal(key string) bool {
	r.mu.Lock()
	e, ok := r.sessions[key]
	r.mu.Unlock()
	if ok {
		e.session.Cancel()
	}
	return ok
}

// Stop cancels the session running under key. stopped is true when a local
// session was cancelled or the stop was broadcast to other instances.
func (r *Registry) Stop(ctx context.Context, key string) (stopped bool, err error) {
	stopped = r.cancelLocal(key)

	if r.redis == nil {
		return stopped, nil
	}
	if err := r.redis.Publish(ctx, r.channel, key).Err(); err != nil {
		return stopped, fmt.Errorf("failed to broadcast stop for %s: %w", key, err)
	}
	return true, nil
}

// Run applies stop broadcasts from other instances until ctx is done. It
// returns immediately when no Redis client is configured.
func (r *Registry) Run(ctx context.Context) error {
	if r.redis == nil {
		return nil
	}

	sub := r.redis.Subscribe(ctx, r.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			fiberlog.Debugf("Error closing stop subscription: %v", err)
		}
	}()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	fiberlog.Infof("Listening for stop broadcasts on %s", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if r.cancelLocal(msg.Payload) {
				fiberlog.Infof("Stopped session for chat %s on broadcast", msg.Payload)
			}
		}
	}
}
