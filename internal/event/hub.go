package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"skycover/internal/models"
	"skycover/internal/repository"
)

// Hub persists engine events inside the emitting transaction and fans them
// out to in-process subscribers (and a redis channel, when configured) after
// the transaction commits.
type Hub struct {
	repo    repository.Repository
	logger  *zap.Logger
	redis   *redis.Client
	channel string

	mu   sync.RWMutex
	subs map[uint64]chan models.EngineEvent
	seq  uint64

	droppedFanout uint64
}

func NewHub(repo repository.Repository, logger *zap.Logger) *Hub {
	return &Hub{
		repo:   repo,
		logger: logger,
		subs:   map[uint64]chan models.EngineEvent{},
	}
}

// WithRedis enables best-effort publishing of broadcast events to a channel.
func (h *Hub) WithRedis(client *redis.Client, channel string) *Hub {
	if h == nil {
		return h
	}
	h.redis = client
	h.channel = channel
	return h
}

// Record writes an event row in the caller's transaction and returns it for
// broadcast after commit.
func (h *Hub) Record(ctx context.Context, tx *gorm.DB, typ string, payload any) (models.EngineEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.EngineEvent{}, err
	}
	evt := models.EngineEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   datatypes.JSON(raw),
		CreatedAt: time.Now().UTC(),
	}
	if h != nil && h.repo != nil {
		if err := h.repo.InsertEventTx(ctx, tx, &evt); err != nil {
			return models.EngineEvent{}, err
		}
	}
	return evt, nil
}

// Broadcast delivers committed events to subscribers without blocking. Slow
// subscribers drop events rather than stalling the engine.
func (h *Hub) Broadcast(events ...models.EngineEvent) {
	if h == nil || len(events) == 0 {
		return
	}
	h.mu.RLock()
	for _, evt := range events {
		for _, ch := range h.subs {
			select {
			case ch <- evt:
			default:
				atomic.AddUint64(&h.droppedFanout, 1)
			}
		}
	}
	h.mu.RUnlock()

	if h.redis != nil && h.channel != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, evt := range events {
			raw, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := h.redis.Publish(ctx, h.channel, raw).Err(); err != nil && h.logger != nil {
				h.logger.Debug("event redis publish failed", zap.Error(err))
			}
		}
	}
}

// Subscribe returns a buffered channel of broadcast events and a cancel
// function that unsubscribes and closes it.
func (h *Hub) Subscribe(buf int) (<-chan models.EngineEvent, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan models.EngineEvent, buf)
	h.mu.Lock()
	h.seq++
	id := h.seq
	h.subs[id] = ch
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if cur, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(cur)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// DroppedFanout reports events dropped due to slow subscribers.
func (h *Hub) DroppedFanout() uint64 {
	return atomic.LoadUint64(&h.droppedFanout)
}
