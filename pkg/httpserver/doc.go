// Package httpserver runs the worker's ops HTTP endpoint with graceful
// shutdown bound to a context, and provides liveness and readiness handlers.
package httpserver
