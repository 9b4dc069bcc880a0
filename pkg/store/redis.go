package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a Redis-compatible server. It holds
// three logically separate client roles per the concurrency model (§5):
// a primary command client, a dedicated subscription client, and a
// secondary command client that serves Pipeline reads — subscription
// connections never issue arbitrary commands. Single-key reads such as
// GetHash, including the Event Bus's keyspace read-back, go through the
// primary command client.
type RedisStore struct {
	cmd      *redis.Client
	sub      *redis.Client
	readback *redis.Client
}

// Config configures a RedisStore.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore dials three clients against the same Redis address.
func NewRedisStore(cfg Config) *RedisStore {
	opts := func() *redis.Options {
		return &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	return &RedisStore{
		cmd:      redis.NewClient(opts()),
		sub:      redis.NewClient(opts()),
		readback: redis.NewClient(opts()),
	}
}

// Ping verifies connectivity on the primary command client; used by
// pkg/gateway's store readiness checker.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.cmd.Ping(ctx).Err()
}

func (r *RedisStore) GetHash(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.cmd.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, &Error{Op: "HGETALL", Key: key, Err: err}
	}
	return m, nil
}

func (r *RedisStore) GetHashFields(ctx context.Context, key string, fields ...string) (map[string]string, error) {
	vals, err := r.cmd.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, &Error{Op: "HMGET", Key: key, Err: err}
	}
	out := make(map[string]string, len(fields))
	for i, f := range fields {
		if vals[i] != nil {
			if s, ok := vals[i].(string); ok {
				out[f] = s
			}
		}
	}
	return out, nil
}

func (r *RedisStore) PutHashFields(ctx context.Context, key string, fields map[string]string) error {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := r.cmd.HSet(ctx, key, args...).Err(); err != nil {
		return &Error{Op: "HSET", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) DeleteKey(ctx context.Context, key string) error {
	if err := r.cmd.Del(ctx, key).Err(); err != nil {
		return &Error{Op: "DEL", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.cmd.TTL(ctx, key).Result()
	if err != nil {
		return 0, &Error{Op: "TTL", Key: key, Err: err}
	}
	return d, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.cmd.Exists(ctx, key).Result()
	if err != nil {
		return false, &Error{Op: "EXISTS", Key: key, Err: err}
	}
	return n > 0, nil
}

func (r *RedisStore) AddToSortedSet(ctx context.Context, key string, score float64, member string) error {
	if err := r.cmd.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return &Error{Op: "ZADD", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) RemoveFromSortedSet(ctx context.Context, key string, member string) error {
	if err := r.cmd.ZRem(ctx, key, member).Err(); err != nil {
		return &Error{Op: "ZREM", Key: key, Err: err}
	}
	return nil
}

func (r *RedisStore) RangeByScore(ctx context.Context, key string, min, max string, offset, count int64) ([]string, error) {
	members, err := r.cmd.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    min,
		Max:    max,
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, &Error{Op: "ZREVRANGEBYSCORE", Key: key, Err: err}
	}
	return members, nil
}

func (r *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64) (ScanResult, error) {
	keys, next, err := r.cmd.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return ScanResult{}, &Error{Op: "SCAN", Key: match, Err: err}
	}
	return ScanResult{Keys: keys, Cursor: next}, nil
}

// Pipeline runs ops against the secondary read-back client. The
// Snapshot Builder is its caller; the Event Bus's keyspace handler reads
// through GetHash instead.
func (r *RedisStore) Pipeline(ctx context.Context, ops []PipelineOp) ([]PipelineResult, error) {
	pipe := r.readback.Pipeline()

	type pending struct {
		kind  PipelineOpKind
		hash  *redis.MapStringStringCmd
		ttl   *redis.DurationCmd
		exist *redis.IntCmd
	}
	cmds := make([]pending, len(ops))

	for i, op := range ops {
		switch op.Kind {
		case PipelineGetHash:
			cmds[i] = pending{kind: op.Kind, hash: pipe.HGetAll(ctx, op.Key)}
		case PipelineTTL:
			cmds[i] = pending{kind: op.Kind, ttl: pipe.TTL(ctx, op.Key)}
		case PipelineExists:
			cmds[i] = pending{kind: op.Kind, exist: pipe.Exists(ctx, op.Key)}
		}
	}

	// Exec's own error is discarded; errors surface per-op below, and a
	// network-level failure shows up as the Err of every op.
	_, _ = pipe.Exec(ctx)

	results := make([]PipelineResult, len(ops))
	for i, c := range cmds {
		switch c.kind {
		case PipelineGetHash:
			m, err := c.hash.Result()
			results[i] = PipelineResult{Hash: m, Err: err}
		case PipelineTTL:
			d, err := c.ttl.Result()
			results[i] = PipelineResult{TTL: d, Err: err}
		case PipelineExists:
			n, err := c.exist.Result()
			results[i] = PipelineResult{Exists: n > 0, Err: err}
		}
	}
	return results, nil
}

func (r *RedisStore) Publish(ctx context.Context, channel string, payload string) error {
	if err := r.cmd.Publish(ctx, channel, payload).Err(); err != nil {
		return &Error{Op: "PUBLISH", Key: channel, Err: err}
	}
	return nil
}

func (r *RedisStore) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := r.sub.Subscribe(ctx, channels...)
	return newRedisSubscription(ps), nil
}

func (r *RedisStore) PSubscribe(ctx context.Context, patterns ...string) (Subscription, error) {
	ps := r.sub.PSubscribe(ctx, patterns...)
	return newRedisSubscription(ps), nil
}

// ConfigureKeyspaceNotifications sets notify-keyspace-events, e.g.
// "KEA" for keyspace+keyevent+all classes, per §4.B's requirement to
// include keyspace, keyevent, string, and expired events.
func (r *RedisStore) ConfigureKeyspaceNotifications(ctx context.Context, flags string) error {
	if err := r.cmd.ConfigSet(ctx, "notify-keyspace-events", flags).Err(); err != nil {
		return &Error{Op: "CONFIG SET notify-keyspace-events", Err: err}
	}
	return nil
}

func (r *RedisStore) Close() error {
	errs := []error{r.cmd.Close(), r.sub.Close(), r.readback.Close()}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	msgs chan *Message
	done chan struct{}
}

func newRedisSubscription(ps *redis.PubSub) *redisSubscription {
	s := &redisSubscription{
		ps:   ps,
		msgs: make(chan *Message, 256),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *redisSubscription) pump() {
	ch := s.ps.Channel()
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				close(s.msgs)
				return
			}
			select {
			case s.msgs <- &Message{Channel: m.Channel, Pattern: m.Pattern, Payload: m.Payload}:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan *Message { return s.msgs }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.ps.Close()
}
