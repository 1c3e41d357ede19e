// Package bus discovers services on the D-Bus session bus.
// It lists registered names, matches them against a well-known prefix and
// resolves the OS process that owns a name. Both the daemon supervisor and
// the player controller use it to find the media-player daemon.
package bus
