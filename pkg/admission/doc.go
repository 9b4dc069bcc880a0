// Package admission is the entry point for new work: it assigns job
// identity, persists the initial record, computes its priority score,
// and announces it through Fan-Out (§4.G).
package admission
