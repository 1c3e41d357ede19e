package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/spotifyctl/internal/model"
	"github.com/jmylchreest/spotifyctl/internal/watch"
)

type fakePlayer struct {
	mu      sync.Mutex
	state   model.PlaybackSnapshot
	updates *watch.Broadcast[model.PlaybackSnapshot]
	calls   []string
	seeks   []int64
	volume  float64
	repeat  model.RepeatMode
	err     error

	disconnected bool
	connects     int
	connectErr   error
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{
		state: model.PlaybackSnapshot{
			IsPlaying:  true,
			PositionMs: 61_000,
			DurationMs: 180_000,
			Volume:     0.5,
			Track: &model.TrackInfo{
				Title:  "Song A",
				Artist: "Artist B",
				Album:  "Album C",
				URI:    "/spotify/track/abc123",
			},
		},
		updates: watch.NewBroadcast[model.PlaybackSnapshot](4),
	}
}

func (f *fakePlayer) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakePlayer) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.disconnected = false
	return nil
}

func (f *fakePlayer) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disconnected
}

func (f *fakePlayer) State() model.PlaybackSnapshot { return f.state.Clone() }

func (f *fakePlayer) Subscribe() *watch.Subscription[model.PlaybackSnapshot] {
	return f.updates.Subscribe()
}

func (f *fakePlayer) RefreshState(context.Context) error { return f.record("refresh") }

func (f *fakePlayer) PlayPause(context.Context) (bool, error) {
	if err := f.record("playpause"); err != nil {
		return false, err
	}
	return false, nil
}

func (f *fakePlayer) Next(context.Context) error     { return f.record("next") }
func (f *fakePlayer) Previous(context.Context) error { return f.record("previous") }

func (f *fakePlayer) Seek(_ context.Context, offsetMs int64) error {
	f.mu.Lock()
	f.seeks = append(f.seeks, offsetMs)
	f.mu.Unlock()
	return f.record("seek")
}

func (f *fakePlayer) SetVolume(_ context.Context, v float64) error {
	f.mu.Lock()
	f.volume = v
	f.mu.Unlock()
	return f.record("volume")
}

func (f *fakePlayer) SetShuffle(context.Context, bool) error { return f.record("shuffle") }

func (f *fakePlayer) SetRepeat(_ context.Context, mode model.RepeatMode) error {
	f.mu.Lock()
	f.repeat = mode
	f.mu.Unlock()
	return f.record("repeat")
}

type fakeDaemon struct{ status model.DaemonStatus }

func (d fakeDaemon) Status() model.DaemonStatus { return d.status }

// switchableDaemon reports whatever status the test last set.
type switchableDaemon struct {
	mu     sync.Mutex
	status model.DaemonStatus
}

func (d *switchableDaemon) Status() model.DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *switchableDaemon) set(s model.DaemonStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = s
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sized(m Model) Model {
	m.statusEvery = time.Millisecond
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func TestKeyCommands(t *testing.T) {
	tests := []struct {
		name string
		key  string
		call string
	}{
		{"play_pause", " ", "playpause"},
		{"next", "n", "next"},
		{"previous", "b", "previous"},
		{"seek_back", "left", "seek"},
		{"seek_forward", "right", "seek"},
		{"volume_up", "up", "volume"},
		{"shuffle", "s", "shuffle"},
		{"repeat", "r", "repeat"},
		{"refresh", "R", "refresh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlayer()
			m := sized(New(p, nil, 0))

			_, cmd := m.Update(keyMsg(tt.key))
			require.NotNil(t, cmd)
			cmd()

			assert.Equal(t, []string{tt.call}, p.calls)
		})
	}
}

func TestSeekDirection(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, nil, 0))

	_, cmd := m.Update(keyMsg("left"))
	cmd()
	_, cmd = m.Update(keyMsg("right"))
	cmd()

	assert.Equal(t, []int64{-seekStepMs, seekStepMs}, p.seeks)
}

func TestVolumeClamped(t *testing.T) {
	p := newFakePlayer()
	p.state.Volume = 0.98
	m := sized(New(p, nil, 0))

	_, cmd := m.Update(keyMsg("+"))
	msg := cmd()

	assert.Equal(t, 1.0, p.volume)
	assert.Equal(t, actionMsg{text: "Volume 100%"}, msg)
}

func TestRepeatCycles(t *testing.T) {
	p := newFakePlayer()
	p.state.Repeat = model.RepeatPlaylist
	m := sized(New(p, nil, 0))

	_, cmd := m.Update(keyMsg("r"))
	cmd()

	assert.Equal(t, model.RepeatPlaylist.Next(), p.repeat)
}

func TestCommandErrorBecomesStatus(t *testing.T) {
	p := newFakePlayer()
	p.err = errors.New("player not connected")
	m := sized(New(p, nil, 0))

	_, cmd := m.Update(keyMsg("n"))
	msg := cmd()

	next, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	next, _ = next.(Model).Update(cmd())

	got := next.(Model)
	assert.True(t, got.statusErr)
	assert.Equal(t, "player not connected", got.statusMsg)
}

func TestCopyTrackLink(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, nil, 0))
	var copied string
	m.copy = func(s string) error {
		copied = s
		return nil
	}

	_, cmd := m.Update(keyMsg("c"))
	msg := cmd()

	assert.Equal(t, "https://open.spotify.com/track/abc123", copied)
	assert.Equal(t, actionMsg{text: "Copied https://open.spotify.com/track/abc123"}, msg)
}

func TestCopyWithoutTrack(t *testing.T) {
	p := newFakePlayer()
	p.state.Track = nil
	m := sized(New(p, nil, 0))

	_, cmd := m.Update(keyMsg("c"))
	msg := cmd()

	assert.Equal(t, statusMsg{text: "Nothing to copy", isErr: true}, msg)
}

func TestHelpMode(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, nil, 0))

	next, _ := m.Update(keyMsg("?"))
	m = next.(Model)
	assert.Equal(t, ModeHelp, m.mode)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	// Playback keys are ignored while help is shown.
	_, cmd := m.Update(keyMsg("n"))
	assert.Nil(t, cmd)
	assert.Empty(t, p.calls)

	next, _ = m.Update(keyMsg("esc"))
	assert.Equal(t, ModeNowPlaying, next.(Model).mode)
}

func TestSnapshotUpdatesView(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, nil, 0))

	next, cmd := m.Update(snapshotMsg(model.PlaybackSnapshot{
		PositionMs: 5_000,
		DurationMs: 3_725_000,
		Volume:     0.25,
		Shuffle:    true,
		Track:      &model.TrackInfo{Title: "Other Song", Artist: "Someone"},
	}))
	require.NotNil(t, cmd)

	view := next.(Model).View()
	assert.Contains(t, view, "Other Song")
	assert.Contains(t, view, "0:05 / 1:02:05")
	assert.Contains(t, view, "vol 25%")
	assert.Contains(t, view, "shuffle on")
}

func TestViewNothingPlaying(t *testing.T) {
	p := newFakePlayer()
	p.state = model.PlaybackSnapshot{Volume: 1}
	m := sized(New(p, nil, 0))

	assert.Contains(t, m.View(), "Nothing playing")
}

func TestViewDaemonStatus(t *testing.T) {
	tests := []struct {
		name   string
		status model.DaemonStatus
		want   string
	}{
		{"stopped", model.DaemonStatus{}, "daemon stopped"},
		{"running", model.DaemonStatus{Running: true, PID: 4242, Authenticated: true}, "daemon 4242"},
		{"off_bus", model.DaemonStatus{Running: true, PID: 7}, "(not on bus)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sized(New(newFakePlayer(), fakeDaemon{tt.status}, 0))
			assert.Contains(t, m.View(), tt.want)
		})
	}
}

func TestNotReadyView(t *testing.T) {
	m := New(newFakePlayer(), nil, 0)
	assert.Equal(t, "Initializing...", m.View())
}

func TestKeybindBarFitsWidth(t *testing.T) {
	m := New(newFakePlayer(), nil, 0)

	bar := stripStyles(m.buildKeybindBar(20))
	assert.LessOrEqual(t, len([]rune(bar)), 20)
	assert.True(t, strings.HasPrefix(bar, "q quit"))

	full := stripStyles(m.buildKeybindBar(0))
	assert.Contains(t, full, "c copy")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{-500, "0:00"},
		{59_999, "0:59"},
		{61_000, "1:01"},
		{3_600_000, "1:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.ms))
		})
	}
}

func TestTrackLink(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"object_path", "/spotify/track/abc", "https://open.spotify.com/track/abc"},
		{"uri", "spotify:track:xyz", "https://open.spotify.com/track/xyz"},
		{"other", "/org/mpris/MediaPlayer2/Track/1", "/org/mpris/MediaPlayer2/Track/1"},
		{"empty_id", "spotify:track:", "spotify:track:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trackLink(tt.uri))
		})
	}
}

func TestDetectClipboardCommand(t *testing.T) {
	only := func(bin string) func(string) (string, error) {
		return func(name string) (string, error) {
			if name == bin {
				return "/usr/bin/" + name, nil
			}
			return "", errors.New("not found")
		}
	}

	assert.Equal(t, "wl-copy", detectClipboardCommand(only("wl-copy")))
	assert.Equal(t, "xclip -selection clipboard", detectClipboardCommand(only("xclip")))
	assert.Equal(t, "", detectClipboardCommand(only("pbcopy")))
}

// stripStyles removes ANSI escape sequences.
func stripStyles(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// runCmd executes cmd and every command it batches, returning the messages
// that are not ticks.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	switch msg := msg.(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			if c == nil {
				continue
			}
			out = append(out, runCmd(c)...)
		}
		return out
	case nil, tickMsg:
		return nil
	}
	return []tea.Msg{msg}
}

func TestTickReconnects(t *testing.T) {
	running := func(pid int) model.DaemonStatus {
		return model.DaemonStatus{Running: true, PID: pid, Authenticated: true}
	}

	tests := []struct {
		name         string
		before       model.DaemonStatus
		after        model.DaemonStatus
		disconnected bool
		want         int
	}{
		{name: "steady", before: running(10), after: running(10), want: 0},
		{name: "daemon restarted", before: running(10), after: running(11), want: 1},
		{name: "player left bus", before: running(10), after: running(10), disconnected: true, want: 1},
		{name: "daemon down", before: running(10), after: model.DaemonStatus{}, disconnected: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePlayer()
			p.disconnected = tt.disconnected
			d := &switchableDaemon{status: tt.before}
			m := sized(New(p, d, 0))

			d.set(tt.after)
			next, cmd := m.Update(tickMsg{})
			msgs := runCmd(cmd)

			p.mu.Lock()
			assert.Equal(t, tt.want, p.connects)
			p.mu.Unlock()
			if tt.want == 0 {
				assert.False(t, next.(Model).reconnecting)
				return
			}

			assert.True(t, next.(Model).reconnecting)
			assert.Contains(t, next.(Model).View(), "reconnecting to player")
			require.Len(t, msgs, 1)
			final, _ := next.(Model).Update(msgs[0])
			assert.False(t, final.(Model).reconnecting)
		})
	}
}

func TestReconnectNotRepeatedWhileInFlight(t *testing.T) {
	p := newFakePlayer()
	p.disconnected = true
	m := sized(New(p, nil, 0))

	next, _ := m.Update(tickMsg{})
	require.True(t, next.(Model).reconnecting)
	assert.False(t, next.(Model).needsReconnect(model.DaemonStatus{}))
}

func TestReconnectFailureBecomesStatus(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, nil, 0))

	next, cmd := m.Update(reconnectMsg{err: errors.New("no player")})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, statusMsg{}, msg)
	assert.True(t, msg.(statusMsg).isErr)
	assert.Contains(t, msg.(statusMsg).text, "no player")
	assert.False(t, next.(Model).reconnecting)
}

func TestTickSkipsRefreshWhenDisabled(t *testing.T) {
	p := newFakePlayer()
	m := sized(New(p, fakeDaemon{model.DaemonStatus{Running: true, PID: 1}}, 0))

	_, cmd := m.Update(tickMsg{})
	runCmd(cmd)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.NotContains(t, p.calls, "refresh")
}
