// Package snapshot builds the consolidated worker/job/machine view sent
// to a monitor connection immediately after it attaches (§4.F), so the
// monitor does not have to wait for incremental Fan-Out deltas to learn
// about state that already existed before it connected.
package snapshot
