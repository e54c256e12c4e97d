// Package requestid correlates ops API requests with their log records
// through the X-Request-ID header.
package requestid
