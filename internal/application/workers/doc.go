// Package workers implements the HTTP worker pool.
//
// The pool runs a fixed number of http.Server instances that:
//   - Accept connections from one shared listener
//   - Serve requests independently, with no coordination between workers
//   - Track whether they are idle, busy or stopped
//
// The health monitor logs pool status, records metrics and publishes
// instance heartbeats to the registry.
package workers
