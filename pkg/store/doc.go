// Package store grounds the Store Adapter component: RedisStore wraps
// three github.com/redis/go-redis/v9 clients (command, subscription, and
// read-back) per the concurrency model in spec §5. MemStore, in
// mem.go, is an in-process fake implementing the same interface, used
// by the rest of the package tests so they don't require a live Redis.
package store
