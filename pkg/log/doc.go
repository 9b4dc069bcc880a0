// Package log provides structured logging for the gateway using zerolog.
//
// A package-level Logger is configured once via Init, then component- and
// request-scoped child loggers are derived with WithComponent, WithJobID,
// WithWorkerID, and WithConnectionID. Every long-lived component that
// logs (event bus, fan-out engine, admission pipeline, admin reconciler,
// snapshot builder, ingress server, gateway) holds its own child logger
// tagged with component=<name>; the store adapter holds none.
package log
