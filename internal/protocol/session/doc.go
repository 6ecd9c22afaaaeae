// Package session owns the gateway call wire helpers.
//
// Ownership boundary:
// - request/response/fault frame encode and decode
// - transport timeouts
// - dial retry backoff
package session
