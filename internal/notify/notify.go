// Package notify turns attendance events into per-user notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"smartattend/internal/attendance"
	"smartattend/internal/model"
	"smartattend/internal/queue"
)

// MaxPerUser caps how many notifications are kept for one user.
const MaxPerUser = 50

// Store keeps notifications, newest first.
type Store interface {
	Add(ctx context.Context, n model.Notification) error
	List(ctx context.Context, userID string) ([]model.Notification, error)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]model.Notification
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]model.Notification)}
}

func (m *Memory) Add(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]model.Notification{n}, m.data[n.UserID]...)
	if len(list) > MaxPerUser {
		list = list[:MaxPerUser]
	}
	m.data[n.UserID] = list
	return nil
}

func (m *Memory) List(_ context.Context, userID string) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Notification(nil), m.data[userID]...), nil
}

// Redis keeps one capped list per user so the worker and API can share it.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "smartattend:notifications:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Add(ctx context.Context, n model.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	key := r.prefix + n.UserID
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, raw)
		p.LTrim(ctx, key, 0, MaxPerUser-1)
		return nil
	})
	return err
}

func (r *Redis) List(ctx context.Context, userID string) ([]model.Notification, error) {
	items, err := r.client.LRange(ctx, r.prefix+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(items))
	for _, it := range items {
		var n model.Notification
		if err := json.Unmarshal([]byte(it), &n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Consumer writes a notification for every attendance event it reads.
type Consumer struct {
	store Store
	clock clockwork.Clock
	log   *slog.Logger
}

func NewConsumer(store Store, clock clockwork.Clock, logger *slog.Logger) *Consumer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{store: store, clock: clock, log: logger}
}

// Handle processes one message. Unknown types are ignored.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != attendance.MarkedEvent {
		return nil
	}
	var rec model.AttendanceRecord
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if rec.StudentID == "" {
		return fmt.Errorf("record %s has no student", rec.ID)
	}
	n := model.Notification{
		ID:        uuid.NewString(),
		UserID:    rec.StudentID,
		Title:     "Attendance marked",
		Message:   fmt.Sprintf("You were marked %s for session %s.", rec.Status, rec.SessionID),
		Type:      model.NotifySuccess,
		Timestamp: c.clock.Now().UTC().Format(time.RFC3339),
	}
	return c.store.Add(ctx, n)
}

// Run consumes q until ctx ends or the queue closes.
func (c *Consumer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	for msg := range messages {
		if err := c.Handle(ctx, msg); err != nil {
			c.log.Warn("notification failed", "type", msg.Type, "err", err)
			continue
		}
		c.log.Debug("notification stored", "type", msg.Type)
	}
	return nil
}
