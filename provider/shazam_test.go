package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"song-recognition/models"
	"song-recognition/shazam"
)

const shazamMatchResponse = `{
	"matches": [{"id": "40333609", "offset": 12.3}],
	"track": {
		"key": "40333609",
		"title": "Amnesia",
		"subtitle": "5 Seconds of Summer",
		"images": {"coverart": "https://is1-ssl.mzstatic.com/image/400x400cc.jpg"},
		"sections": [
			{"type": "SONG", "metadata": [
				{"title": "Album", "text": "5 Seconds of Summer"},
				{"title": "Label", "text": "Capitol"},
				{"title": "Released", "text": "2014"}
			]},
			{"type": "VIDEO"},
			{"type": "LYRICS", "text": ["I drove by all the places", "we used to hang out getting wasted"]},
			{"type": "SONG", "metadata": [{"title": "Album", "text": "Ignored"}]}
		],
		"hub": {
			"actions": [
				{"name": "apple", "type": "applemusicplay", "id": "1"},
				{"name": "preview", "type": "uri", "uri": "https://audio-ssl.itunes.apple.com/preview.m4a"},
				{"name": "other", "type": "uri", "uri": "https://ignored"}
			],
			"providers": [
				{"type": "DEEZER", "actions": [{"type": "uri", "uri": "deezer://x"}]},
				{"type": "SPOTIFY", "actions": [{"type": "uri", "uri": "spotify:search:amnesia"}]}
			]
		}
	}
}`

func TestShazamParseMatch(t *testing.T) {
	song, err := parseShazamResponse([]byte(shazamMatchResponse))
	require.Nil(t, err)

	assert.Equal(t, models.Uid("Shazam-40333609"), song.ID)
	assert.Equal(t, "Amnesia", song.Title)
	assert.Equal(t, "5 Seconds of Summer", song.Artist)
	assert.Equal(t, "5 Seconds of Summer", song.Album)
	assert.Equal(t, "2014", song.ReleaseDate)
	assert.Equal(t, "https://is1-ssl.mzstatic.com/image/400x400cc.jpg", song.AlbumArtLink)
	assert.Equal(t, "I drove by all the places\nwe used to hang out getting wasted", song.Lyrics)
	assert.Equal(t, "https://audio-ssl.itunes.apple.com/preview.m4a", song.PlaybackLink)
	assert.Equal(t, "spotify:search:amnesia", song.ExternalLinks[models.SpotifyUrl])
	assert.Equal(t, "5 Seconds of Summer - Amnesia", song.ExternalLinks[models.YoutubeSearchTerm])
}

func TestShazamParseNoMatches(t *testing.T) {
	_, err := parseShazamResponse([]byte(`{"matches": [], "timestamp": 1}`))
	require.NotNil(t, err)
	assert.Equal(t, NoMatches, err.Kind)
}

func TestShazamParseMalformed(t *testing.T) {
	for _, body := range []string{
		`{"timestamp": 1}`,
		`{"matches": {}}`,
		`{"matches": [{}], "track": {"title": "T", "subtitle": "A"}}`,
		`{"matches": [{}], "track": {"title": 1, "subtitle": "A", "key": "k"}}`,
		`<html>`,
	} {
		_, err := parseShazamResponse([]byte(body))
		require.NotNil(t, err, body)
		assert.Equal(t, OtherPermanent, err.Kind, body)
	}
}

func TestShazamParseMinimal(t *testing.T) {
	song, err := parseShazamResponse([]byte(`{"matches": [{}], "track": {"title": "T", "subtitle": "A", "key": "k"}}`))
	require.Nil(t, err)
	assert.Empty(t, song.Album)
	assert.Empty(t, song.Lyrics)
	assert.Empty(t, song.PlaybackLink)
	assert.NotContains(t, song.ExternalLinks, models.SpotifyUrl)
}

func toneSamples(seconds int) []int16 {
	samples := make([]int16, seconds*shazam.SampleRateHz)
	for i := range samples {
		tt := float64(i) / shazam.SampleRateHz
		samples[i] = int16(6000 * math.Sin(2*math.Pi*880*tt) * (1 + 0.5*math.Sin(2*math.Pi*2*tt)))
	}
	return samples
}

func TestShazamRecognizeRequest(t *testing.T) {
	pathRe := regexp.MustCompile(`^/discovery/v5/en/US/android/-/tag/[0-9a-f-]{36}/[0-9a-f-]{36}$`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Regexp(t, pathRe, r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("sync"))
		assert.Equal(t, "v3", r.URL.Query().Get("shazamapiversion"))
		assert.Equal(t, "en_US", r.Header.Get("Content-Language"))
		assert.Contains(t, userAgents, r.Header.Get("User-Agent"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var req shazamRequest
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, 300, req.Geolocation.Altitude)
		assert.Equal(t, 45, req.Geolocation.Latitude)
		assert.Equal(t, 2, req.Geolocation.Longitude)
		assert.Equal(t, "Europe/Paris", req.Timezone)
		assert.Equal(t, uint32(12000), req.Signature.SampleMs)
		assert.True(t, strings.HasPrefix(req.Signature.URI, "data:audio/vnd.shazam.sig;base64,"))
		assert.Equal(t, req.Timestamp, req.Signature.Timestamp)

		w.Write([]byte(shazamMatchResponse))
	}))
	defer server.Close()

	s := &Shazam{
		BaseURL: server.URL,
		Decode: func(ctx context.Context, data []byte, rate int) ([]int16, error) {
			assert.Equal(t, shazam.SampleRateHz, rate)
			return toneSamples(20), nil
		},
	}

	song, err := s.Recognize(context.Background(), []byte("ogg"))
	require.NoError(t, err)
	assert.Equal(t, "Amnesia", song.Title)
	assert.Equal(t, 4*time.Second, s.ListenDuration())
}

func TestShazamDecodeFailure(t *testing.T) {
	s := &Shazam{
		BaseURL: "http://127.0.0.1:1",
		Decode: func(context.Context, []byte, int) ([]int16, error) {
			return nil, errors.New("invalid data found when processing input")
		},
	}

	_, err := s.Recognize(context.Background(), []byte("garbage"))

	var recognizeErr *RecognizeError
	require.ErrorAs(t, err, &recognizeErr)
	assert.Equal(t, Fingerprint, recognizeErr.Kind)
	assert.True(t, recognizeErr.IsPermanent())
}

// unresolvableTransport fails every dial the way a missing DNS record does.
func unresolvableTransport() *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, _ := net.SplitHostPort(addr)
			return nil, &net.OpError{Op: "dial", Net: network, Err: &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}}
		},
	}
}

func TestShazamDNSFailureIsConnectionError(t *testing.T) {
	s := &Shazam{
		BaseURL: "http://amp.shazam.invalid",
		Client:  &http.Client{Transport: unresolvableTransport()},
		Decode: func(context.Context, []byte, int) ([]int16, error) {
			return toneSamples(1), nil
		},
	}

	_, err := s.Recognize(context.Background(), []byte("ogg"))

	var recognizeErr *RecognizeError
	require.ErrorAs(t, err, &recognizeErr)
	assert.Equal(t, Connection, recognizeErr.Kind)
}

func TestShazamRefusedConnectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	s := &Shazam{
		BaseURL: url,
		Decode: func(context.Context, []byte, int) ([]int16, error) {
			return toneSamples(1), nil
		},
	}

	_, err := s.Recognize(context.Background(), []byte("ogg"))

	var recognizeErr *RecognizeError
	require.ErrorAs(t, err, &recognizeErr)
	assert.Equal(t, OtherPermanent, recognizeErr.Kind)
}

func TestShazamTagURLUnique(t *testing.T) {
	s := NewShazam()
	a, b := s.tagURL(), s.tagURL()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "https://amp.shazam.com/discovery/v5/en/US/android/-/tag/"))
	assert.True(t, strings.HasSuffix(a, "?"+shazamQuery))
}
