// Package health classifies an instance from periodic liveness probes.
//
// The classification follows the container HEALTHCHECK contract:
//   - starting: inside the start period, failures are ignored
//   - probing: start period over, no successful probe yet
//   - healthy: the last probe succeeded
//   - unhealthy: Retries consecutive probes failed; final until restart
//
// Tracker is the pure state machine. Monitor drives it with a Prober on a
// fixed interval, bounding every probe by the policy timeout.
package health
