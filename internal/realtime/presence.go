package realtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "privmsg:presence:"

// RedisPresence shares online state between nodes. Each user has a hash
// keyed by node id whose values are expiry times in unix millis; a user
// is online while any node's entry is unexpired.
type RedisPresence struct {
	client *redis.Client
	node   string
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisPresence connects to url and verifies the server answers.
func NewRedisPresence(url string, ttl time.Duration, logger *log.Logger) (*RedisPresence, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisPresenceClient(c, ttl, logger), nil
}

// NewRedisPresenceClient wraps an existing client.
func NewRedisPresenceClient(c *redis.Client, ttl time.Duration, logger *log.Logger) *RedisPresence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisPresence{
		client: c,
		node:   uuid.NewString(),
		ttl:    ttl,
		logger: logger.With("component", "presence"),
	}
}

func presenceKey(uid string) string { return presenceKeyPrefix + uid }

// Mark records this node as holding a session for uid.
func (p *RedisPresence) Mark(ctx context.Context, uid string) error {
	key := presenceKey(uid)
	expires := time.Now().Add(p.ttl).UnixMilli()
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, p.node, expires)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Clear drops this node's entry for uid.
func (p *RedisPresence) Clear(ctx context.Context, uid string) error {
	return p.client.HDel(ctx, presenceKey(uid), p.node).Err()
}

// IsOnline reports whether any node holds an unexpired entry for uid.
func (p *RedisPresence) IsOnline(ctx context.Context, uid string) (bool, error) {
	entries, err := p.client.HGetAll(ctx, presenceKey(uid)).Result()
	if err != nil {
		return false, err
	}
	now := time.Now().UnixMilli()
	for _, v := range entries {
		expires, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		if expires > now {
			return true, nil
		}
	}
	return false, nil
}

// Heartbeat refreshes the entries of every user online on hub until ctx
// is done.
func (p *RedisPresence) Heartbeat(ctx context.Context, hub *Hub) {
	ticker := time.NewTicker(p.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, uid := range hub.OnlineUsers() {
				if err := p.Mark(ctx, uid); err != nil {
					p.logger.Warn("presence refresh failed", "uid", uid, "err", err)
				}
			}
		}
	}
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}

// Presence answers whether a user is online.
type Presence interface {
	IsOnline(ctx context.Context, uid string) (bool, error)
}

// AnyPresence reports a user online when any member does. An error is
// returned only if no member answered.
type AnyPresence []Presence

func (a AnyPresence) IsOnline(ctx context.Context, uid string) (bool, error) {
	var firstErr error
	answered := false
	for _, p := range a {
		online, err := p.IsOnline(ctx, uid)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if online {
			return true, nil
		}
		answered = true
	}
	if !answered && firstErr != nil {
		return false, firstErr
	}
	return false, nil
}
