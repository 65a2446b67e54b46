package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/config"
)

const unreadTTL = 30 * time.Second

// Client is a small read-through cache for unread counters. Mutating
// operations invalidate; misses fall back to the conversation store.
type Client struct {
	cli *redis.Client
	log *zap.SugaredLogger
}

func NewRedis(cfg *config.Config, log *zap.SugaredLogger) (*Client, error) {
	r := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{cli: r, log: log}, nil
}

func (c *Client) Close() error { return c.cli.Close() }

// Redis returns the underlying client for middleware that shares the pool.
func (c *Client) Redis() *redis.Client { return c.cli }

func unreadKey(conversationID, userID string) string {
	return "unread:" + conversationID + ":" + userID
}

func (c *Client) GetUnread(ctx context.Context, conversationID, userID string) (int64, bool) {
	s, err := c.cli.Get(ctx, unreadKey(conversationID, userID)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		c.log.Warnw("unread cache get", "err", err)
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Client) SetUnread(ctx context.Context, conversationID, userID string, n int64) {
	if err := c.cli.Set(ctx, unreadKey(conversationID, userID), n, unreadTTL).Err(); err != nil {
		c.log.Warnw("unread cache set", "err", err)
	}
}

func (c *Client) InvalidateUnread(ctx context.Context, conversationID string, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, uid := range userIDs {
		keys[i] = unreadKey(conversationID, uid)
	}
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		c.log.Warnw("unread cache invalidate", "err", err)
	}
}
