// README: Best-effort outbound notification events; never blocks the core.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"antar/internal/types"
)

type Kind string

const (
	KindOrder      Kind = "order"
	KindDriver     Kind = "driver"
	KindMerchant   Kind = "merchant"
	KindWithdrawal Kind = "withdrawal"
	KindWarning    Kind = "warning"
	KindSystem     Kind = "system"
)

type Event struct {
	UserID  types.ID       `json:"user_id"`
	Kind    Kind           `json:"kind"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// Emitter is the outbound notification boundary. Implementations must not
// block the caller; delivery is fire-and-forget.
type Emitter interface {
	Notify(userID types.ID, kind Kind, payload map[string]any)
}

// RedisEmitter publishes events to a per-user Redis channel through a
// buffered queue drained by a single worker goroutine.
type RedisEmitter struct {
	redis *redis.Client
	log   *zap.Logger
	queue chan Event

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewRedisEmitter(client *redis.Client, log *zap.Logger, buffer int) *RedisEmitter {
	if buffer <= 0 {
		buffer = 1024
	}
	e := &RedisEmitter{
		redis: client,
		log:   log,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go e.run()
	return e
}

// Notify enqueues the event. When the queue is full the event is dropped
// with a warning; the core never waits on the sink. After Close the event
// is dropped silently.
func (e *RedisEmitter) Notify(userID types.ID, kind Kind, payload map[string]any) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	ev := Event{UserID: userID, Kind: kind, Payload: payload, At: time.Now().UTC()}
	select {
	case e.queue <- ev:
	default:
		e.log.Warn("notification queue full, event dropped",
			zap.String("user_id", string(userID)),
			zap.String("kind", string(kind)))
	}
}

func (e *RedisEmitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		body, err := json.Marshal(ev)
		if err != nil {
			e.log.Warn("notification marshal failed", zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := e.redis.Publish(ctx, channelFor(ev.UserID), body).Err(); err != nil {
			e.log.Warn("notification publish failed",
				zap.String("user_id", string(ev.UserID)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and drains the queue. The write lock waits
// out in-flight Notify calls, so the queue can only be closed with no sender
// left inside the select.
func (e *RedisEmitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.queue)
		<-e.done
	})
}

func channelFor(userID types.ID) string {
	return "notify:" + string(userID)
}

// Nop discards every event. Used where no sink is configured.
type Nop struct{}

func (Nop) Notify(types.ID, Kind, map[string]any) {}
