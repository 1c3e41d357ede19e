// Package player controls an MPRIS media player over D-Bus.
//
// A Controller binds to the first service matching the configured name
// prefix, issues playback commands, and keeps a cached PlaybackSnapshot
// current through periodic refreshes and PropertiesChanged signals. Every
// snapshot change is broadcast to subscribers.
package player
