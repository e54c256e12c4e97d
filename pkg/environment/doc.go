// Package environment names the deployment environments of the worker and
// carries the current one through context, so that logs and HTTP handlers can
// tell production from development without extra parameters.
package environment
