// Package registry implements the Connection Registry described in §4.D:
// four variant maps (SSE, duplex, named, monitor) plus the job-to-submitter
// mapping, each guarded by its own RWMutex so fan-out iteration over one
// variant never blocks attach/detach on another.
package registry
