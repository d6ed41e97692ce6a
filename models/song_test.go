package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUidFrom(t *testing.T) {
	assert.Equal(t, Uid("Shazam-123"), UidFrom("Shazam", "123"))
	assert.NotEqual(t, UidFrom("Shazam", "123"), UidFrom("AudD", "123"))
}

func TestSongTerms(t *testing.T) {
	song := NewSong(UidFrom("Test", "a"), "Amnesia", "5 Seconds Of Summer", "Amnesia")

	assert.Equal(t, "5 Seconds Of Summer Amnesia", song.SearchTerm())
	assert.Equal(t, "5 Seconds Of Summer - Amnesia", song.CopyTerm())
}

func TestSongJSON(t *testing.T) {
	song := NewSong(UidFrom("Test", "a"), "t", "a", "b")
	song.SetExternalLink(SpotifyUrl, "https://open.spotify.com/track/x")
	song.Lyrics = "la la"

	data, err := json.Marshal(song)
	require.NoError(t, err)

	var decoded Song
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *song, decoded)
}
