// Package gateway binds the method catalogue to one caller session.
//
// A Session owns the handle table and the exheader snapshot captured at
// start-up. Handlers are method values on the session, so every call sees
// the same state without package globals. Calls are serialized.
package gateway
