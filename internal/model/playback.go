// Package model defines the core data structures for spotifyctl.
package model

// LoopStatus values of the MPRIS Player.LoopStatus property.
const (
	LoopStatusNone     = "None"
	LoopStatusPlaylist = "Playlist"
	LoopStatusTrack    = "Track"
)

// RepeatMode is the player's repeat setting.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatPlaylist
	RepeatTrack
)

// RepeatModeFromLoopStatus maps an MPRIS LoopStatus string to a RepeatMode.
// Unknown values map to RepeatNone.
func RepeatModeFromLoopStatus(status string) RepeatMode {
	switch status {
	case LoopStatusPlaylist:
		return RepeatPlaylist
	case LoopStatusTrack:
		return RepeatTrack
	default:
		return RepeatNone
	}
}

// LoopStatus returns the MPRIS LoopStatus string for the mode.
func (r RepeatMode) LoopStatus() string {
	switch r {
	case RepeatPlaylist:
		return LoopStatusPlaylist
	case RepeatTrack:
		return LoopStatusTrack
	default:
		return LoopStatusNone
	}
}

// String returns the lowercase name used in CLI flags and output.
func (r RepeatMode) String() string {
	switch r {
	case RepeatPlaylist:
		return "playlist"
	case RepeatTrack:
		return "track"
	default:
		return "none"
	}
}

// ParseRepeatMode parses a repeat mode name. Both the lowercase names and
// the MPRIS LoopStatus spellings are accepted.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "none", LoopStatusNone, "off":
		return RepeatNone, nil
	case "playlist", LoopStatusPlaylist, "all":
		return RepeatPlaylist, nil
	case "track", LoopStatusTrack, "one":
		return RepeatTrack, nil
	default:
		return RepeatNone, &Error{Kind: KindInvalidArgument, Op: "parse repeat mode", Message: "unknown repeat mode " + s}
	}
}

// Next cycles none -> playlist -> track -> none.
func (r RepeatMode) Next() RepeatMode {
	switch r {
	case RepeatNone:
		return RepeatPlaylist
	case RepeatPlaylist:
		return RepeatTrack
	default:
		return RepeatNone
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r RepeatMode) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RepeatMode) UnmarshalText(text []byte) error {
	mode, err := ParseRepeatMode(string(text))
	if err != nil {
		return err
	}
	*r = mode
	return nil
}

// TrackInfo describes the currently loaded track.
type TrackInfo struct {
	Title  string `json:"title" yaml:"title"`
	Artist string `json:"artist" yaml:"artist"`
	Album  string `json:"album" yaml:"album"`
	ArtURL string `json:"art_url,omitempty" yaml:"art_url,omitempty"`
	URI    string `json:"uri" yaml:"uri"`
}

// PlaybackSnapshot is an immutable copy of the full playback state.
// Snapshots are replaced wholesale, never mutated after publication.
type PlaybackSnapshot struct {
	IsPlaying  bool       `json:"is_playing" yaml:"is_playing"`
	PositionMs int64      `json:"position_ms" yaml:"position_ms"`
	DurationMs int64      `json:"duration_ms" yaml:"duration_ms"`
	Volume     float64    `json:"volume" yaml:"volume"`
	Shuffle    bool       `json:"shuffle" yaml:"shuffle"`
	Repeat     RepeatMode `json:"repeat" yaml:"repeat"`
	Track      *TrackInfo `json:"track" yaml:"track"`
}

// Clone returns a deep copy of the snapshot.
func (s PlaybackSnapshot) Clone() PlaybackSnapshot {
	if s.Track != nil {
		track := *s.Track
		s.Track = &track
	}
	return s
}

// Progress returns the position as a fraction of the duration, clamped to [0,1].
func (s PlaybackSnapshot) Progress() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	p := float64(s.PositionMs) / float64(s.DurationMs)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
