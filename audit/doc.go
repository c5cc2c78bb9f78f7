// Package audit implements the SEO audit job catalog: the site crawler,
// the performance and content-brief analyses, and the HTTP clients for
// the external metrics and text-generation services they call.
//
// The three job kinds map one-to-one onto the queues they run on:
//
//	audit.site_crawl       → crawl
//	audit.page_performance → analysis
//	audit.content_brief    → content
//
// External lookups go through the cache gateway so repeated audits of the
// same URL or keyword within a day reuse the prior response.
package audit
