package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUserNotCached is returned when the credentials are not cached
var ErrUserNotCached = errors.New("user not found in cache")

type Config struct {
	Addr         string
	Password     string
	DB           int
	AuthKeyPrefix string
	AuthTTL       time.Duration
	DedupeTTL     time.Duration
}

// Client wraps Redis for the credential lookup cache and the notification
// delivery markers.
type Client struct {
	client       *redis.Client
	authKeyPrefix string
	authTTL       time.Duration
	dedupeTTL     time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(rdb, cfg), nil
}

// New wraps an existing go-redis client
func New(rdb *redis.Client, cfg Config) *Client {
	if cfg.AuthKeyPrefix == "" {
		cfg.AuthKeyPrefix = "users:auth"
	}
	if cfg.AuthTTL == 0 {
		cfg.AuthTTL = 5 * time.Minute
	}
	if cfg.DedupeTTL == 0 {
		cfg.DedupeTTL = 72 * time.Hour
	}
	return &Client{
		client:       rdb,
		authKeyPrefix: cfg.AuthKeyPrefix,
		authTTL:       cfg.AuthTTL,
		dedupeTTL:     cfg.DedupeTTL,
	}
}

func (c *Client) authKey(email, passwordHash string) string {
	return c.authKeyPrefix + ":" + base64.StdEncoding.EncodeToString([]byte(email+":"+passwordHash))
}

func (c *Client) GetUserIDByAuth(ctx context.Context, email, passwordHash string) (int64, error) {
	userIDStr, err := c.client.Get(ctx, c.authKey(email, passwordHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUserNotCached
		}
		return 0, fmt.Errorf("cache lookup error: %w", err)
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID in cache: %w", err)
	}

	return userID, nil
}

// SetUserAuth caches a resolved credential pair. Entries expire after the
// auth TTL, which bounds how long a deactivated user keeps access.
func (c *Client) SetUserAuth(ctx context.Context, email, passwordHash string, userID int64) error {
	return c.client.Set(ctx, c.authKey(email, passwordHash), userID, c.authTTL).Err()
}

// ErrDeliveryInFlight is returned by Claim while another delivery holds the
// key and has not confirmed it yet.
var ErrDeliveryInFlight = errors.New("delivery in flight")

const (
	markerInFlight = "inflight"
	markerSent     = "sent"
)

func dedupeKey(key string) string {
	return "dedupe:" + key
}

// Claim takes key for one delivery attempt. The claim expires after lease so
// a consumer that died mid-delivery does not block the redelivered message.
// It returns false without error when the key was already confirmed.
func (c *Client) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, dedupeKey(key), markerInFlight, lease).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set dedupe marker: %w", err)
	}
	if ok {
		return true, nil
	}

	state, err := c.client.Get(ctx, dedupeKey(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// lease expired between the two calls
		return false, ErrDeliveryInFlight
	case err != nil:
		return false, fmt.Errorf("failed to read dedupe marker: %w", err)
	case state == markerSent:
		return false, nil
	}
	return false, ErrDeliveryInFlight
}

// Confirm records a completed delivery for the dedupe window
func (c *Client) Confirm(ctx context.Context, key string) error {
	return c.client.Set(ctx, dedupeKey(key), markerSent, c.dedupeTTL).Err()
}

// Release drops a marker so a redelivered message can be processed again
func (c *Client) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, dedupeKey(key)).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}
