package player

import (
	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/spotifyctl/internal/model"
)

// Metadata keys read from the Metadata property.
const (
	KeyTitle   = "xesam:title"
	KeyArtist  = "xesam:artist"
	KeyAlbum   = "xesam:album"
	KeyArtURL  = "mpris:artUrl"
	KeyTrackID = "mpris:trackid"
	KeyLength  = "mpris:length"
)

// ParseMetadata converts an MPRIS metadata map into track info and a
// duration in milliseconds. Without a title there is no track. Only the
// first artist is kept.
func ParseMetadata(md map[string]dbus.Variant) (*model.TrackInfo, int64) {
	durationMs := lengthMicros(md) / 1000

	title, ok := stringValue(md, KeyTitle)
	if !ok {
		return nil, durationMs
	}

	track := &model.TrackInfo{
		Title: title,
	}
	track.Artist = firstArtist(md)
	track.Album, _ = stringValue(md, KeyAlbum)
	track.ArtURL, _ = stringValue(md, KeyArtURL)

	if v, ok := md[KeyTrackID]; ok {
		switch id := v.Value().(type) {
		case dbus.ObjectPath:
			track.URI = string(id)
		case string:
			track.URI = id
		}
	}

	return track, durationMs
}

func stringValue(md map[string]dbus.Variant, key string) (string, bool) {
	v, ok := md[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func firstArtist(md map[string]dbus.Variant) string {
	v, ok := md[KeyArtist]
	if !ok {
		return ""
	}
	switch artists := v.Value().(type) {
	case []string:
		if len(artists) > 0 {
			return artists[0]
		}
	case []any:
		if len(artists) > 0 {
			s, _ := artists[0].(string)
			return s
		}
	case []dbus.Variant:
		if len(artists) > 0 {
			s, _ := artists[0].Value().(string)
			return s
		}
	case string:
		return artists
	}
	return ""
}

// lengthMicros reads mpris:length, which players encode as x or t.
func lengthMicros(md map[string]dbus.Variant) int64 {
	v, ok := md[KeyLength]
	if !ok {
		return 0
	}
	switch n := v.Value().(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}

// variantBool reads a boolean property value.
func variantBool(v dbus.Variant) (bool, bool) {
	b, ok := v.Value().(bool)
	return b, ok
}

// variantString reads a string property value.
func variantString(v dbus.Variant) (string, bool) {
	s, ok := v.Value().(string)
	return s, ok
}

// variantFloat reads a double property value.
func variantFloat(v dbus.Variant) (float64, bool) {
	f, ok := v.Value().(float64)
	return f, ok
}

// variantInt reads an integer property value.
func variantInt(v dbus.Variant) (int64, bool) {
	switch n := v.Value().(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}

// variantMetadata reads the Metadata property value.
func variantMetadata(v dbus.Variant) (map[string]dbus.Variant, bool) {
	md, ok := v.Value().(map[string]dbus.Variant)
	return md, ok
}
