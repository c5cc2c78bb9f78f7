// Package aether provides the asynchronous audit engine behind Project
// Aether: submit a long-running analysis job (site crawl, page performance
// run, content brief), receive an opaque job ID immediately, and poll or
// stream progress until the job reaches a terminal state.
//
// Aether is a library first. Configure a store and a cache backend, build
// an engine, and register audit jobs as ordinary Go functions:
//
//	d, err := aether.New(
//	    aether.WithStore(memstore.New()),
//	    aether.WithConcurrency(10),
//	)
//
// # Architecture
//
// Each subsystem lives in its own package: job defines the record and the
// store contract, worker executes jobs through a middleware chain, retry
// decides whether a failure is retried and with what delay, cache shields
// expensive external lookups behind deterministic SHA-256 keys with TTL
// expiry, and engine wires everything together with explicit construction
// and teardown.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package aether
