// Package watch provides the two state propagation primitives used by the
// player controller and the daemon supervisor: a bounded multi-consumer
// broadcast that drops the oldest queued value when a subscriber falls
// behind, and a single-slot latest-value cell with change notification.
package watch
