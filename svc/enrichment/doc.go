// Package enrichment fills the keyword bank with search volume, difficulty,
// CPC and intent from the keyword data API, one bounded batch per run.
// The worker is constructed by the process bootstrap and handed to the
// sweep handler.
package enrichment
