// Package daemon supervises the media-player daemon's OS process.
// It adopts a healthy running instance when one exists, otherwise clears
// out stale instances and spawns a fresh detached one, and tracks whether
// termination rights belong to this process.
package daemon
