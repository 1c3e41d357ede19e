// Package tui provides the BubbleTea-based now-playing interface.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/watch"
)

// Player is the subset of the player controller the TUI drives.
type Player interface {
	Connect(ctx context.Context) error
	Connected() bool
	State() model.PlaybackSnapshot
	Subscribe() *watch.Subscription[model.PlaybackSnapshot]
	RefreshState(ctx context.Context) error
	PlayPause(ctx context.Context) (bool, error)
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, offsetMs int64) error
	SetVolume(ctx context.Context, volume float64) error
	SetShuffle(ctx context.Context, shuffle bool) error
	SetRepeat(ctx context.Context, mode model.RepeatMode) error
}

// DaemonSource reports the supervised daemon's state.
type DaemonSource interface {
	Status() model.DaemonStatus
}

// Mode represents the current UI mode.
type Mode int

const (
	ModeNowPlaying Mode = iota
	ModeHelp
)

const (
	seekStepMs       = 5000
	volumeStep       = 0.05
	commandTimeout   = 5 * time.Second
	statusInterval   = time.Second
	reconnectTimeout = 15 * time.Second
)

// Model is the main TUI model.
type Model struct {
	player  Player
	daemon  DaemonSource
	sub     *watch.Subscription[model.PlaybackSnapshot]
	refresh time.Duration

	// statusEvery paces daemon and binding checks when refresh is off.
	statusEvery time.Duration

	mode Mode

	// Components
	progress progress.Model
	help     help.Model
	keys     KeyMap

	// State
	state        model.PlaybackSnapshot
	daemonStatus model.DaemonStatus
	width        int
	height       int
	ready        bool
	reconnecting bool

	// Status message
	statusMsg string
	statusErr bool

	copy func(string) error
}

// New creates a new TUI model. daemon may be nil. A zero refresh
// disables periodic re-reads; the daemon and the player binding are still
// checked every second.
func New(p Player, daemon DaemonSource, refresh time.Duration) Model {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())

	m := Model{
		player:      p,
		daemon:      daemon,
		refresh:     refresh,
		statusEvery: statusInterval,
		mode:        ModeNowPlaying,
		progress:    bar,
		help:        help.New(),
		keys:        DefaultKeyMap(),
		state:       p.State(),
		sub:         p.Subscribe(),
		copy:        copyText,
	}
	if daemon != nil {
		m.daemonStatus = daemon.Status()
	}
	return m
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot, m.tick())
}

type snapshotMsg model.PlaybackSnapshot

type tickMsg struct{}

type actionMsg struct {
	text string
	err  error
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type reconnectMsg struct{ err error }

// waitForSnapshot blocks until the controller publishes a new snapshot.
func (m Model) waitForSnapshot() tea.Msg {
	if m.sub == nil {
		return nil
	}
	s, ok := <-m.sub.C
	if !ok {
		return nil
	}
	return snapshotMsg(s)
}

func (m Model) tick() tea.Cmd {
	interval := m.refresh
	if interval <= 0 {
		interval = m.statusEvery
	}
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.progress.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.state = model.PlaybackSnapshot(msg)
		return m, m.waitForSnapshot

	case tickMsg:
		prev := m.daemonStatus
		if m.daemon != nil {
			m.daemonStatus = m.daemon.Status()
		}
		cmds := []tea.Cmd{m.tick()}
		switch {
		case m.needsReconnect(prev):
			m.reconnecting = true
			cmds = append(cmds, m.reconnect())
		case m.refresh > 0 && m.player.Connected():
			cmds = append(cmds, m.refreshState())
		}
		return m, tea.Batch(cmds...)

	case reconnectMsg:
		m.reconnecting = false
		if msg.err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: "Player unavailable: " + msg.err.Error(), isErr: true}
			}
		}
		return m, func() tea.Msg {
			return statusMsg{text: "Reconnected to player"}
		}

	case actionMsg:
		if msg.err != nil {
			return m, func() tea.Msg {
				return statusMsg{text: msg.err.Error(), isErr: true}
			}
		}
		if msg.text == "" {
			return m, nil
		}
		return m, func() tea.Msg {
			return statusMsg{text: msg.text}
		}

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	return m, nil
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.mode == ModeHelp {
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.mode = ModeNowPlaying
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, m.keys.PlayPause):
		return m, m.run(func(ctx context.Context) (string, error) {
			playing, err := m.player.PlayPause(ctx)
			if err != nil {
				return "", err
			}
			if playing {
				return "Playing", nil
			}
			return "Paused", nil
		})

	case key.Matches(msg, m.keys.Next):
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", m.player.Next(ctx)
		})

	case key.Matches(msg, m.keys.Previous):
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", m.player.Previous(ctx)
		})

	case key.Matches(msg, m.keys.SeekBack):
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", m.player.Seek(ctx, -seekStepMs)
		})

	case key.Matches(msg, m.keys.SeekFwd):
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", m.player.Seek(ctx, seekStepMs)
		})

	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.setVolume(m.state.Volume + volumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.setVolume(m.state.Volume - volumeStep)

	case key.Matches(msg, m.keys.Shuffle):
		shuffle := !m.state.Shuffle
		return m, m.run(func(ctx context.Context) (string, error) {
			if err := m.player.SetShuffle(ctx, shuffle); err != nil {
				return "", err
			}
			return fmt.Sprintf("Shuffle %s", onOff(shuffle)), nil
		})

	case key.Matches(msg, m.keys.Repeat):
		repeat := m.state.Repeat.Next()
		return m, m.run(func(ctx context.Context) (string, error) {
			if err := m.player.SetRepeat(ctx, repeat); err != nil {
				return "", err
			}
			return "Repeat " + repeat.String(), nil
		})

	case key.Matches(msg, m.keys.Copy):
		if m.state.Track == nil || m.state.Track.URI == "" {
			return m, func() tea.Msg {
				return statusMsg{text: "Nothing to copy", isErr: true}
			}
		}
		link := trackLink(m.state.Track.URI)
		copyFn := m.copy
		return m, func() tea.Msg {
			if err := copyFn(link); err != nil {
				return actionMsg{err: fmt.Errorf("copy failed: %w", err)}
			}
			return actionMsg{text: "Copied " + link}
		}

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshState()
	}

	return m, nil
}

// run executes a player command off the UI goroutine.
func (m Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		text, err := fn(ctx)
		return actionMsg{text: text, err: err}
	}
}

func (m Model) setVolume(volume float64) tea.Cmd {
	volume = clampVolume(volume)
	return m.run(func(ctx context.Context) (string, error) {
		if err := m.player.SetVolume(ctx, volume); err != nil {
			return "", err
		}
		return fmt.Sprintf("Volume %d%%", percent(volume)), nil
	})
}

// needsReconnect reports whether the player binding is stale: the daemon
// came back under a new pid, or the player left the bus while a daemon is
// running. Without a daemon source only the binding is checked.
func (m Model) needsReconnect(prev model.DaemonStatus) bool {
	if m.reconnecting {
		return false
	}
	if m.daemon != nil {
		if !m.daemonStatus.Running {
			return false
		}
		if m.daemonStatus.PID != prev.PID {
			return true
		}
	}
	return !m.player.Connected()
}

func (m Model) reconnect() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
		defer cancel()
		return reconnectMsg{err: m.player.Connect(ctx)}
	}
}

func (m Model) refreshState() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := m.player.RefreshState(ctx); err != nil {
			return actionMsg{err: err}
		}
		return nil
	}
}

// RunOptions configures the TUI.
type RunOptions struct {
	Player          Player
	Daemon          DaemonSource  // optional
	RefreshInterval time.Duration // 0 = rely on change signals only
}

// Run starts the TUI and blocks until the user quits.
func Run(opts RunOptions) error {
	if opts.Player == nil {
		return fmt.Errorf("no player provided")
	}

	m := New(opts.Player, opts.Daemon, opts.RefreshInterval)
	defer m.sub.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func percent(v float64) int {
	return int(v*100 + 0.5)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
