// Package store provides the typed facade over the shared hash +
// sorted-set + pub/sub backing store (§4.A, §6.3), and a concrete
// implementation backed by Redis via go-redis/v9.
package store

import (
	"context"
	"time"
)

// ScanResult is one page of a cursor-based SCAN.
type ScanResult struct {
	Keys   []string
	Cursor uint64
}

// PipelineOp is one operation queued into a Pipeline call; Err is
// populated in the returned slice, never panicked.
type PipelineOp struct {
	Kind   PipelineOpKind
	Key    string
	Fields []string // for GetHash
}

// PipelineOpKind discriminates the supported pipelined operations.
type PipelineOpKind string

const (
	PipelineGetHash PipelineOpKind = "get_hash"
	PipelineTTL     PipelineOpKind = "ttl"
	PipelineExists  PipelineOpKind = "exists"
)

// PipelineResult is the outcome of one queued PipelineOp.
type PipelineResult struct {
	Hash   map[string]string
	TTL    time.Duration
	Exists bool
	Err    error
}

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Pattern string // non-empty when received via a pattern subscription
	Payload string
}

// Subscription is a live subscription to one or more channels/patterns.
type Subscription interface {
	Messages() <-chan *Message
	Close() error
}

// Store is the typed facade every component above it depends on. No
// caller outside this package talks to go-redis directly.
type Store interface {
	// Hashes
	GetHash(ctx context.Context, key string) (map[string]string, error)
	GetHashFields(ctx context.Context, key string, fields ...string) (map[string]string, error)
	PutHashFields(ctx context.Context, key string, fields map[string]string) error
	DeleteKey(ctx context.Context, key string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Exists(ctx context.Context, key string) (bool, error)

	// Sorted sets
	AddToSortedSet(ctx context.Context, key string, score float64, member string) error
	RemoveFromSortedSet(ctx context.Context, key string, member string) error
	RangeByScore(ctx context.Context, key string, min, max string, offset, count int64) ([]string, error)

	// Scan / pipeline
	Scan(ctx context.Context, cursor uint64, match string, count int64) (ScanResult, error)
	Pipeline(ctx context.Context, ops []PipelineOp) ([]PipelineResult, error)

	// Pub/sub
	Publish(ctx context.Context, channel string, payload string) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	PSubscribe(ctx context.Context, patterns ...string) (Subscription, error)
	ConfigureKeyspaceNotifications(ctx context.Context, flags string) error

	Close() error
}

// Error is the StoreFailure-carrying error type for this package,
// wrapped with gatewayerr.StoreFailure by every caller that surfaces it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return e.Op + " " + e.Key + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
