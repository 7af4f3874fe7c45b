// Package runlock keeps two sync runs from executing at the same time,
// either within one process or across replicas sharing a Redis.
package runlock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "clockify-sync:lock:"

// Local is an in-process lock keyed by name.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript resets the TTL only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a lock shared by every process using the same Redis. The TTL
// bounds how long a crashed holder can block others; a live holder
// refreshes it every third of the TTL until released.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	refresh time.Duration
	log     *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl < time.Second {
		ttl = time.Hour
	}
	return &Redis{client: client, ttl: ttl, refresh: ttl / 3, log: log}
}

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	k := keyPrefix + key
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("runlock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(k, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(c, r.client, []string{k}, token).Err(); err != nil {
				r.log.Warn("release run lock failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		})
	}, true, nil
}

func (r *Redis) keepAlive(k, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(r.refresh)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			held, err := r.extend(k, token)
			if err != nil {
				r.log.Warn("extend run lock failed", slog.String("key", k), slog.String("error", err.Error()))
				continue
			}
			if !held {
				r.log.Warn("run lock lost before release", slog.String("key", k))
				return
			}
		}
	}
}

// extend resets the TTL of k if it is still held with token.
func (r *Redis) extend(k, token string) (bool, error) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := extendScript.Run(c, r.client, []string{k}, token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
