// Package server carries gateway calls over TCP.
//
// The daemon serves one caller at a time. Each accepted connection gets a
// fresh gateway session: start-up runs before the first frame is read and
// teardown runs when the connection ends, whatever the reason.
package server
