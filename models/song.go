package models

import (
	"fmt"
	"time"
)

// Uid is a unique id made up of a namespace and a unique string,
// e.g. "Shazam-40333609".
type Uid string

// UidFrom creates an id from uniqueStr within namespace. the caller must
// ensure uniqueStr is unique for that namespace.
func UidFrom(namespace, uniqueStr string) Uid {
	return Uid(fmt.Sprintf("%s-%s", namespace, uniqueStr))
}

func (u Uid) String() string {
	return string(u)
}

type ExternalLinkKey string

const (
	AppleMusicUrl     ExternalLinkKey = "apple-music-url"
	AudDUrl           ExternalLinkKey = "audd-url"
	SpotifyUrl        ExternalLinkKey = "spotify-url"
	YoutubeSearchTerm ExternalLinkKey = "youtube-search-term"
	YoutubeUrl        ExternalLinkKey = "youtube-url"
)

// ExternalLinks maps a link kind to its value. most values are URLs, except
// YoutubeSearchTerm which holds the query used to build one.
type ExternalLinks map[ExternalLinkKey]string

// Song is a recognized track.
type Song struct {
	ID            Uid           `json:"id"`
	Title         string        `json:"title"`
	Artist        string        `json:"artist"`
	Album         string        `json:"album"`
	ReleaseDate   string        `json:"release_date,omitempty"`
	ExternalLinks ExternalLinks `json:"external_links,omitempty"`
	AlbumArtLink  string        `json:"album_art_link,omitempty"`
	PlaybackLink  string        `json:"playback_link,omitempty"`
	Lyrics        string        `json:"lyrics,omitempty"`
	LastHeard     *time.Time    `json:"last_heard,omitempty"`
	IsNewlyHeard  bool          `json:"is_newly_heard,omitempty"`
}

// NewSong creates a song with the required fields set. id must be unique
// per remote track so repeated recognitions coalesce in history.
func NewSong(id Uid, title, artist, album string) *Song {
	return &Song{
		ID:            id,
		Title:         title,
		Artist:        artist,
		Album:         album,
		ExternalLinks: ExternalLinks{},
	}
}

// SetExternalLink stores value under key, allocating the map if needed.
func (s *Song) SetExternalLink(key ExternalLinkKey, value string) {
	if s.ExternalLinks == nil {
		s.ExternalLinks = ExternalLinks{}
	}
	s.ExternalLinks[key] = value
}

// SearchTerm is matched against when searching the history.
func (s *Song) SearchTerm() string {
	return fmt.Sprintf("%s %s", s.Artist, s.Title)
}

// CopyTerm is what gets copied to the clipboard.
func (s *Song) CopyTerm() string {
	return fmt.Sprintf("%s - %s", s.Artist, s.Title)
}
