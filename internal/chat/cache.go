package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guitargpt/internal/models"
	"guitargpt/internal/redis"
)

const messageCacheTTL = 30 * time.Minute

// Cache keeps recently opened sessions' message lists in redis so switching
// between sessions avoids a database round trip. Safe to use with a nil
// client; every call degrades to a miss.
type Cache struct {
	client *redis.Client
	log    *zap.Logger
}

func NewCache(client *redis.Client, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{client: client, log: log}
}

func messagesKey(sessionID int64) string {
	return fmt.Sprintf("chat:messages:%d", sessionID)
}

// StoreMessages caches the full ordered message list for a session.
func (c *Cache) StoreMessages(ctx context.Context, sessionID int64, messages []models.Message) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(messages)
	if err != nil {
		c.log.Warn("encode cached messages", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, messagesKey(sessionID), data, messageCacheTTL); err != nil {
		c.log.Warn("store cached messages", zap.Int64("session_id", sessionID), zap.Error(err))
	}
}

// LoadMessages returns the cached list, or (nil, false) on a miss.
func (c *Cache) LoadMessages(ctx context.Context, sessionID int64) ([]models.Message, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, messagesKey(sessionID))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.Warn("load cached messages", zap.Int64("session_id", sessionID), zap.Error(err))
		}
		return nil, false
	}
	var messages []models.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		c.log.Warn("decode cached messages", zap.Int64("session_id", sessionID), zap.Error(err))
		return nil, false
	}
	return messages, true
}

// Invalidate drops the cached list after any write to the session.
func (c *Cache) Invalidate(ctx context.Context, sessionIDs ...int64) {
	if c == nil || c.client == nil || len(sessionIDs) == 0 {
		return
	}
	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = messagesKey(id)
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.log.Warn("invalidate cached messages", zap.Error(err))
	}
}
