package main

import (
	"github.com/jmylchreest/spotifyctl/internal/process"
)

func main() {
	// Must run before anything else: when re-executed as the detach
	// intermediate this starts the daemon and exits.
	process.HandleDetach()

	Execute()
}
