// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives a request struct filled by binders (see package
// binder) and returns a Response. Wrap turns it into an http.HandlerFunc;
// bind failures answer 400 and render failures go to the ErrorHandler.
// JSON responses share one envelope, {"data": ...} on success and
// {"error": {"code", "message", "details"}} on failure.
package handler
