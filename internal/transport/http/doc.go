// Package http exposes the loopback JSON API consumed by the desktop shell.
//
// Handlers are thin: they bind and validate the request, call one service
// method and render the result with go-chi/render. Every failure goes
// through errors.ErrorHandler so the UI always receives RFC 7807 problem
// details with a trace id.
package http
