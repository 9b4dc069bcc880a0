// Package events implements the Event Bus described in spec §4.B: a
// fixed subscription set of channels and patterns, untyped-JSON parsing,
// normalization into the typed events in pkg/types, and keyspace-notification
// read-back to synthesize events when workers mutate job/worker hashes
// directly. Normalized events are handed to a pkg/fanout.Engine.
package events
