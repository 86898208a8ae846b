package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/pkg/persistence"
	"github.com/aretw0/appflow/pkg/session"
	backend "github.com/redis/go-redis/v9"
)

// Event is the JSON document published for every state change.
type Event = persistence.Snapshot

var _ persistence.Store = (*Publisher)(nil)

// Publisher mirrors session states into Redis: the latest snapshot under a
// key, an index of sessions and a pub/sub channel per session.
type Publisher struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Publisher)

// WithTTL sets the expiration for snapshots.
func WithTTL(ttl time.Duration) Option {
	return func(p *Publisher) {
		p.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		p.prefix = prefix
	}
}

// WithLogger reports publish failures that happen inside subscribers.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a publisher with its own client.
func New(address, password string, db int, opts ...Option) *Publisher {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a publisher from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		prefix: "appflow:session:",
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Client returns the underlying client, for sharing it with a Locker.
func (p *Publisher) Client() *backend.Client {
	return p.client
}

func (p *Publisher) key(sessionID string) string {
	return p.prefix + sessionID
}

func (p *Publisher) indexKey() string {
	return p.prefix + "index"
}

// Channel returns the pub/sub channel of a session.
func (p *Publisher) Channel(sessionID string) string {
	return p.prefix + "events:" + sessionID
}

// Publish stores e as the session's latest snapshot and announces it.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.Pipeline()

	// 1. Save JSON with TTL (0 means no expiration)
	pipe.Set(ctx, p.key(e.Session), data, p.ttl)

	// 2. Add to Index (ZSET), scored by expiry
	score := float64(time.Now().Add(p.ttl).Unix())
	if p.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, p.indexKey(), backend.Z{Score: score, Member: e.Session})

	// 3. Announce
	pipe.Publish(ctx, p.Channel(e.Session), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Save is Publish, making the publisher a persistence.Store.
func (p *Publisher) Save(ctx context.Context, e Event) error {
	return p.Publish(ctx, e)
}

// Attach publishes the session's current state and every later change. It
// has the shape of a session.StartHook; the returned function stops
// publishing and removes the snapshot.
func (p *Publisher) Attach(ctx context.Context, s *session.Session) func() {
	return persistence.Recorder(p, persistence.WithLogger(p.logger))(ctx, s)
}

// Load retrieves the latest snapshot of a session.
func (p *Publisher) Load(ctx context.Context, sessionID string) (*Event, error) {
	val, err := p.client.Get(ctx, p.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var e Event
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// Delete removes the session's snapshot and index entry.
func (p *Publisher) Delete(ctx context.Context, sessionID string) error {
	pipe := p.client.Pipeline()

	pipe.Del(ctx, p.key(sessionID))
	pipe.ZRem(ctx, p.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the sessions with a live snapshot.
func (p *Publisher) List(ctx context.Context) ([]string, error) {
	// Lazy Cleanup: Remove expired keys from Index
	now := float64(time.Now().Unix())
	err := p.client.ZRemRangeByScore(ctx, p.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := p.client.ZRange(ctx, p.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Watch streams the events published for a session until ctx ends.
func (p *Publisher) Watch(ctx context.Context, sessionID string) (<-chan Event, error) {
	sub := p.client.Subscribe(ctx, p.Channel(sessionID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					p.logger.Warn("malformed event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
