// Package queue defines the queue abstraction with per-queue rate
// limiting and concurrency caps.
//
// Queues are named channels that group related jobs. Jobs carry a Queue
// field that determines which queue they belong to. The dispatcher polls
// the queues listed in [aether.Config.Queues] (default: crawl, analysis,
// content).
//
// # Per-Queue Configuration
//
// Use [Config] to set per-queue rate limits and concurrency caps. Audit
// jobs hammer third-party APIs, so the analysis queue is typically capped
// below the pool-wide concurrency:
//
//	queue.Config{
//	    Name:           "analysis",
//	    MaxConcurrency: 4,      // max 4 concurrent metric lookups
//	    RateLimit:      2,      // max 2 jobs/s claimed from this queue
//	    RateBurst:      4,      // allow bursts up to 4
//	}
//
// # Manager
//
// [Manager] enforces the limits at claim time. It uses a token-bucket
// rate limiter (golang.org/x/time/rate) and an active-count gate for
// concurrency limits.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(queueName) {
//	    defer m.Release(queueName)
//	    // process the job
//	}
//
// Queues without a [Config] have no limits beyond the pool-wide
// concurrency.
package queue
