// Package server hosts the Fiber HTTP service in front of the PWA origin: the
// request-id middleware, the catch-all route that hands every non-diagnostic
// request to the edge proxy handler, and the shared upstream http.Client.
// Diagnostic endpoints live under the "/-/" prefix (see package routes) and are
// never forwarded to the origin.
package server
