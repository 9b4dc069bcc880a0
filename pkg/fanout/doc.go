// Package fanout implements the per-event routing step described in
// spec §4.E: one typed event, multiplexed to the correct subset of
// connections across monitors, SSE job-scoped clients, duplex clients,
// and the submitting named client.
package fanout
