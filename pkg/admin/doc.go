// Package admin implements the on-demand administrative surface: worker
// reset, orphan sweep, machine deletion, machine lifecycle classification,
// and job cancellation (§4.H). Unlike a periodic reconciliation loop, each
// operation here runs synchronously against an admin or Event Bus trigger.
package admin
