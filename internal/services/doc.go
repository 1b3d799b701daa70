// Package services holds the orchestration layer between the HTTP handlers
// and the domain packages. A service combines several collaborators (device
// identity, activation protocol, session state, storage health) so handlers
// stay thin and the combined rules are testable without a router.
package services
