// Package process is the OS process surface used by the daemon supervisor:
// liveness inspection through procfs, lookup by executable name, signal
// delivery with escalating termination, and detached spawning that hands
// the final pid back through a short-lived file.
package process
