// Package opsapi is the operator HTTP API of the worker process: liveness
// and readiness probes, queue statistics and dead letter inspection with
// manual retry.
package opsapi
