// Package handler implements the pairmesh HTTP control API.
//
// Every JSON response uses the Response envelope. Domain errors are mapped
// to HTTP statuses by the numeric part of their code; internal causes are
// logged and never returned to the caller.
package handler
