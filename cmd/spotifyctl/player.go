package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/player"
)

var stateOpts struct {
	format string
}

// playerCommand builds a command that connects to the player, runs fn and
// closes the connection.
func playerCommand(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, c *player.Controller, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := connectPlayer(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			return fn(ctx, c, args)
		},
	}
}

func init() {
	rootCmd.AddCommand(
		playerCommand("play-pause", "Toggle playback", cobra.NoArgs,
			func(ctx context.Context, c *player.Controller, _ []string) error {
				playing, err := c.PlayPause(ctx)
				if err != nil {
					return err
				}
				if playing {
					fmt.Println("playing")
				} else {
					fmt.Println("paused")
				}
				return nil
			}),
		playerCommand("play", "Start playback", cobra.NoArgs,
			func(ctx context.Context, c *player.Controller, _ []string) error {
				return c.Play(ctx)
			}),
		playerCommand("pause", "Pause playback", cobra.NoArgs,
			func(ctx context.Context, c *player.Controller, _ []string) error {
				return c.Pause(ctx)
			}),
		playerCommand("next", "Skip to the next track", cobra.NoArgs,
			func(ctx context.Context, c *player.Controller, _ []string) error {
				return c.Next(ctx)
			}),
		playerCommand("previous", "Go back to the previous track", cobra.NoArgs,
			func(ctx context.Context, c *player.Controller, _ []string) error {
				return c.Previous(ctx)
			}),
		withLong(playerCommand("seek OFFSET", "Seek relative to the current position", cobra.ExactArgs(1),
			func(ctx context.Context, c *player.Controller, args []string) error {
				offset, err := parseMillis(args[0])
				if err != nil {
					return err
				}
				return c.Seek(ctx, offset)
			}),
			`Seek by OFFSET, given in milliseconds or as a duration such as 10s.
Use -- before negative offsets: spotifyctl seek -- -10s`),
		playerCommand("position POSITION", "Jump to an absolute position in the current track", cobra.ExactArgs(1),
			func(ctx context.Context, c *player.Controller, args []string) error {
				pos, err := parseMillis(args[0])
				if err != nil {
					return err
				}
				return c.SetPosition(ctx, pos)
			}),
		playerCommand("volume [PERCENT]", "Show or set the volume (0-100)", cobra.MaximumNArgs(1),
			func(ctx context.Context, c *player.Controller, args []string) error {
				if len(args) == 0 {
					fmt.Printf("%d%%\n", int(c.State().Volume*100+0.5))
					return nil
				}
				percent, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "%"), 64)
				if err != nil {
					return fmt.Errorf("invalid volume %q: %w", args[0], err)
				}
				return c.SetVolume(ctx, percent/100)
			}),
		playerCommand("shuffle [on|off|toggle]", "Show or set shuffle", cobra.MaximumNArgs(1),
			func(ctx context.Context, c *player.Controller, args []string) error {
				current := c.State().Shuffle
				if len(args) == 0 {
					fmt.Println(onOff(current))
					return nil
				}
				var shuffle bool
				switch strings.ToLower(args[0]) {
				case "on", "true":
					shuffle = true
				case "off", "false":
					shuffle = false
				case "toggle":
					shuffle = !current
				default:
					return fmt.Errorf("invalid shuffle value: %s (use on, off or toggle)", args[0])
				}
				return c.SetShuffle(ctx, shuffle)
			}),
		playerCommand("repeat [none|playlist|track|next]", "Show or set the repeat mode", cobra.MaximumNArgs(1),
			func(ctx context.Context, c *player.Controller, args []string) error {
				current := c.State().Repeat
				if len(args) == 0 {
					fmt.Println(current)
					return nil
				}
				mode := current.Next()
				if args[0] != "next" {
					var err error
					if mode, err = model.ParseRepeatMode(args[0]); err != nil {
						return err
					}
				}
				return c.SetRepeat(ctx, mode)
			}),
		stateCmd,
		watchCmd,
	)

	stateCmd.Flags().StringVar(&stateOpts.format, "format", formatText,
		"Output format (text, json, yaml)")
}

func withLong(cmd *cobra.Command, long string) *cobra.Command {
	cmd.Long = long
	return cmd
}

var stateCmd = playerCommand("state", "Print the current playback state", cobra.NoArgs,
	func(_ context.Context, c *player.Controller, _ []string) error {
		s := c.State()
		return printValue(stateOpts.format, s, func() string {
			return formatSnapshot(s)
		})
	})

var watchCmd = withLong(playerCommand("watch", "Print playback state changes as JSON lines", cobra.NoArgs,
	func(ctx context.Context, c *player.Controller, _ []string) error {
		sub := c.Subscribe()
		defer sub.Close()

		if interval := cfg.Player.PollInterval.Duration(); interval > 0 {
			go c.Poll(ctx, interval)
		}

		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(c.State()); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case s, ok := <-sub.C:
				if !ok {
					return nil
				}
				if err := enc.Encode(s); err != nil {
					return err
				}
			}
		}
	}),
	`Print the playback state, then every change, until interrupted. Changes
come from the player's change signals and periodic refreshes.`)

// parseMillis accepts an integer millisecond count or a Go duration.
func parseMillis(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use milliseconds or a duration like 10s", s)
	}
	return d.Milliseconds(), nil
}

func formatSnapshot(s model.PlaybackSnapshot) string {
	var b strings.Builder
	state := "paused"
	if s.IsPlaying {
		state = "playing"
	}
	if s.Track == nil {
		fmt.Fprintf(&b, "%s: nothing playing\n", state)
	} else {
		fmt.Fprintf(&b, "%s: %s - %s", state, s.Track.Artist, s.Track.Title)
		if s.Track.Album != "" {
			fmt.Fprintf(&b, " (%s)", s.Track.Album)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "position %s / %s\n",
		time.Duration(s.PositionMs)*time.Millisecond,
		time.Duration(s.DurationMs)*time.Millisecond)
	fmt.Fprintf(&b, "volume %d%%  shuffle %s  repeat %s",
		int(s.Volume*100+0.5), onOff(s.Shuffle), s.Repeat)
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
