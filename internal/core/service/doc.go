// Package service implements the connection lifecycle of pairmesh.
//
// Registry tracks the live connection of each identity. Supervisor starts
// connections, hydrates them from the credential store, consumes their
// events and reconnects them after transient failures. ControlService is the
// operator-facing API used by the HTTP surface.
package service
