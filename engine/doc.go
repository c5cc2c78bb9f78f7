// Package engine wires the audit subsystems together: the job registry,
// retry controller, middleware chain, worker pool, cache gateway, and
// progress broker. Every client is constructed in Build and torn down in
// Stop; nothing is created at import time.
//
// This package exists to break an import cycle: the root aether package
// defines Entity and the error taxonomy (imported by job, worker, and the
// rest) and so cannot import those packages back. The engine package sits
// above all subsystem packages and below the application layer.
//
// Typical wiring:
//
//	d, _ := aether.New(aether.WithStore(memstore.New()))
//	eng, _ := engine.Build(d)
//	auditSvc.Register(eng.Registry())
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	j, err := engine.Submit(ctx, eng, audit.KindSiteCrawl, audit.CrawlSpec{
//	    RootURL: "https://example.com", MaxDepth: 3, MaxPages: 100,
//	})
package engine
