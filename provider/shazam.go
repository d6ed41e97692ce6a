package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"song-recognition/logger"
	"song-recognition/models"
	"song-recognition/shazam"
	"song-recognition/wav"
)

const (
	ShazamBaseURL        = "https://amp.shazam.com"
	shazamListenDuration = 4 * time.Second
	shazamQuery          = "sync=true&webv3=true&sampling=true&connected=&shazamapiversion=v3&sharehub=true&video=v3"
	shazamTimezone       = "Europe/Paris"
)

// DecodeFunc decodes an encoded audio blob into mono PCM at sampleRate.
type DecodeFunc func(ctx context.Context, data []byte, sampleRate int) ([]int16, error)

// Shazam recognizes by sending a locally generated audio signature.
type Shazam struct {
	BaseURL string
	Client  *http.Client
	Decode  DecodeFunc
}

func NewShazam() *Shazam {
	return &Shazam{BaseURL: ShazamBaseURL, Decode: wav.DecodePCM}
}

func (s *Shazam) ListenDuration() time.Duration {
	return shazamListenDuration
}

func (s *Shazam) Recognize(ctx context.Context, data []byte) (*models.Song, error) {
	signature, err := s.createSignature(ctx, data)
	if err != nil {
		return nil, err
	}

	resp, err := s.sendRequest(ctx, signature)
	if err != nil {
		return nil, err
	}

	logger.Debug("[shazam] server response", logger.Int("bytes", len(resp)))

	song, recognizeErr := parseShazamResponse(resp)
	if recognizeErr != nil {
		return nil, recognizeErr
	}
	return song, nil
}

func (s *Shazam) createSignature(ctx context.Context, data []byte) (shazam.Signature, error) {
	decode := s.Decode
	if decode == nil {
		decode = wav.DecodePCM
	}

	samples, err := decode(ctx, data, shazam.SampleRateHz)
	if err != nil {
		if ctx.Err() != nil {
			return shazam.Signature{}, ctx.Err()
		}
		return shazam.Signature{}, newRecognizeErrorf(Fingerprint, "failed to decode bytes: %v", err)
	}

	// the middle of the recording has the best odds
	window := shazam.CenterWindow(samples, shazam.SampleRateHz, shazam.MaxAudioDurationSecs)

	signature, err := shazam.GenerateSignatureAsync(ctx, window)
	if err != nil {
		return shazam.Signature{}, err
	}
	return signature, nil
}

type shazamRequest struct {
	Geolocation struct {
		Altitude  int `json:"altitude"`
		Latitude  int `json:"latitude"`
		Longitude int `json:"longitude"`
	} `json:"geolocation"`
	Signature struct {
		SampleMs  uint32 `json:"samplems"`
		Timestamp uint32 `json:"timestamp"`
		URI       string `json:"uri"`
	} `json:"signature"`
	Timestamp uint32 `json:"timestamp"`
	Timezone  string `json:"timezone"`
}

func newShazamRequest(signature *shazam.Signature, uri string, now time.Time) shazamRequest {
	timestamp := uint32(now.UnixMilli())

	var req shazamRequest
	req.Geolocation.Altitude = 300
	req.Geolocation.Latitude = 45
	req.Geolocation.Longitude = 2
	req.Signature.SampleMs = signature.SampleMs()
	req.Signature.Timestamp = timestamp
	req.Signature.URI = uri
	req.Timestamp = timestamp
	req.Timezone = shazamTimezone
	return req
}

func (s *Shazam) tagURL() string {
	base := s.BaseURL
	if base == "" {
		base = ShazamBaseURL
	}
	return fmt.Sprintf("%s/discovery/v5/en/US/android/-/tag/%s/%s?%s",
		strings.TrimSuffix(base, "/"), uuid.NewString(), uuid.NewString(), shazamQuery)
}

func (s *Shazam) sendRequest(ctx context.Context, signature shazam.Signature) ([]byte, error) {
	uri, err := signature.EncodeToURI()
	if err != nil {
		return nil, newRecognizeErrorf(Fingerprint, "failed to encode signature to URI: %v", err)
	}

	body, err := json.Marshal(newShazamRequest(&signature, uri, time.Now()))
	if err != nil {
		return nil, newRecognizeErrorf(OtherPermanent, "failed to encode request: %v", err)
	}

	return post(ctx, s.Client, s.tagURL(), body, map[string]string{
		"User-Agent":       userAgents[rand.Intn(len(userAgents))],
		"Content-Language": "en_US",
	})
}

func parseShazamResponse(body []byte) (*models.Song, *RecognizeError) {
	if !gjson.ValidBytes(body) {
		return nil, NewRecognizeError(OtherPermanent, "invalid JSON response")
	}
	value := gjson.ParseBytes(body)

	matches := value.Get("matches")
	if !matches.IsArray() {
		return nil, NewRecognizeError(OtherPermanent, "missing `matches` field")
	}
	switch n := len(matches.Array()); {
	case n == 0:
		return nil, NewRecognizeError(NoMatches, "")
	case n > 1:
		logger.Debug("[shazam] multiple matches found", logger.Int("count", n))
	}

	track := value.Get("track")

	var songSection, lyricsSection gjson.Result
	track.Get("sections").ForEach(func(_, section gjson.Result) bool {
		switch section.Get("type").String() {
		case "SONG":
			if !songSection.Exists() {
				songSection = section
			}
		case "LYRICS":
			if !lyricsSection.Exists() {
				lyricsSection = section
			}
		}
		return true
	})

	var album, releaseDate string
	var haveAlbum, haveRelease bool
	songSection.Get("metadata").ForEach(func(_, item gjson.Result) bool {
		text := item.Get("text")
		switch item.Get("title").String() {
		case "Album":
			if !haveAlbum && text.Type == gjson.String {
				album, haveAlbum = text.String(), true
			}
		case "Released":
			if !haveRelease && text.Type == gjson.String {
				releaseDate, haveRelease = text.String(), true
			}
		}
		return true
	})

	title, err := gjsonString(track, "title")
	if err != nil {
		return nil, err
	}
	artist, err := gjsonString(track, "subtitle")
	if err != nil {
		return nil, err
	}
	key, err := gjsonString(track, "key")
	if err != nil {
		return nil, err
	}

	song := models.NewSong(models.UidFrom("Shazam", key), title, artist, album)
	song.ReleaseDate = releaseDate
	song.SetExternalLink(models.YoutubeSearchTerm, fmt.Sprintf("%s - %s", artist, title))

	if coverart := track.Get("images.coverart"); coverart.Type == gjson.String {
		song.AlbumArtLink = coverart.String()
	}

	if lines := lyricsSection.Get("text"); lines.IsArray() {
		var parts []string
		for _, line := range lines.Array() {
			if line.Type == gjson.String {
				parts = append(parts, line.String())
			}
		}
		song.Lyrics = strings.Join(parts, "\n")
	}

	track.Get("hub.actions").ForEach(func(_, action gjson.Result) bool {
		if action.Get("type").String() != "uri" {
			return true
		}
		if uri := action.Get("uri"); uri.Type == gjson.String {
			song.PlaybackLink = uri.String()
		}
		return false
	})

	track.Get("hub.providers").ForEach(func(_, p gjson.Result) bool {
		if p.Get("type").String() != "SPOTIFY" {
			return true
		}
		p.Get("actions").ForEach(func(_, action gjson.Result) bool {
			if action.Get("type").String() == "uri" {
				if uri := action.Get("uri"); uri.Type == gjson.String {
					song.SetExternalLink(models.SpotifyUrl, uri.String())
				}
			}
			return true
		})
		return true
	})

	return song, nil
}

func gjsonString(value gjson.Result, path string) (string, *RecognizeError) {
	field := value.Get(path)
	if field.Type != gjson.String {
		return "", newRecognizeErrorf(OtherPermanent, "expected `str` but got `%s`", field.Raw)
	}
	return field.String(), nil
}
