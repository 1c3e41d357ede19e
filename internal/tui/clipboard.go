package tui

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// copyText copies text to the system clipboard.
func copyText(text string) error {
	cmd := detectClipboardCommand(exec.LookPath)
	if cmd == "" {
		return fmt.Errorf("no clipboard command available")
	}

	parts := strings.Fields(cmd)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := exec.CommandContext(ctx, parts[0], parts[1:]...)
	c.Stdin = strings.NewReader(text)

	return c.Run()
}

// detectClipboardCommand returns the first available clipboard command,
// preferring Wayland over X11.
func detectClipboardCommand(lookPath func(string) (string, error)) string {
	candidates := []struct {
		bin     string
		command string
	}{
		{"wl-copy", "wl-copy"},
		{"xclip", "xclip -selection clipboard"},
		{"xsel", "xsel --clipboard --input"},
	}
	for _, c := range candidates {
		if _, err := lookPath(c.bin); err == nil {
			return c.command
		}
	}
	return ""
}

// trackLink converts a Spotify track id into a shareable URL. Object
// paths of the form /spotify/track/<id> and spotify:track:<id> URIs are
// recognised; anything else is returned unchanged.
func trackLink(uri string) string {
	var id string
	switch {
	case strings.HasPrefix(uri, "spotify:track:"):
		id = strings.TrimPrefix(uri, "spotify:track:")
	case strings.HasPrefix(uri, "/spotify/track/"):
		id = strings.TrimPrefix(uri, "/spotify/track/")
	default:
		return uri
	}
	if id == "" {
		return uri
	}
	return "https://open.spotify.com/track/" + id
}
