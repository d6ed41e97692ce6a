package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"song-recognition/logger"
	"song-recognition/models"
)

const (
	AudDEndpoint       = "https://api.audd.io/"
	auddReturnFlags    = "spotify,apple_music,musicbrainz,lyrics"
	auddListenDuration = 5 * time.Second
	auddArtworkSize    = "600"
)

// AudD error codes, see https://docs.audd.io/#common-errors
const (
	auddCodeFingerprint       = 300
	auddCodeInvalidToken      = 900
	auddCodeTokenLimitReached = 901
)

// AudD recognizes through the AudD JSON API.
type AudD struct {
	Token    string
	Endpoint string
	Client   *http.Client
}

func NewAudD(token string) *AudD {
	return &AudD{Token: token, Endpoint: AudDEndpoint}
}

func (a *AudD) ListenDuration() time.Duration {
	return auddListenDuration
}

func (a *AudD) Recognize(ctx context.Context, data []byte) (*models.Song, error) {
	body, err := json.Marshal(map[string]string{
		"api_token": a.Token,
		"return":    auddReturnFlags,
		"audio":     base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, newRecognizeErrorf(OtherPermanent, "failed to encode request: %v", err)
	}

	endpoint := a.Endpoint
	if endpoint == "" {
		endpoint = AudDEndpoint
	}

	resp, err := post(ctx, a.Client, endpoint, body, nil)
	if err != nil {
		return nil, err
	}

	logger.Debug("[audd] server response", logger.Int("bytes", len(resp)))

	song, recognizeErr := parseAudDResponse(resp)
	if recognizeErr != nil {
		return nil, recognizeErr
	}
	return song, nil
}

// parseAudDResponse turns a response envelope into a song. success with a
// null result means no matches.
func parseAudDResponse(body []byte) (*models.Song, *RecognizeError) {
	status, err := jsonparser.GetString(body, "status")
	if err != nil {
		return nil, newRecognizeErrorf(OtherPermanent, "failed to parse AudD response: %v", err)
	}

	switch status {
	case "success":
		result, dataType, _, err := jsonparser.Get(body, "result")
		if err == jsonparser.KeyPathNotFoundError || dataType == jsonparser.Null {
			return nil, NewRecognizeError(NoMatches, "")
		}
		if err != nil || dataType != jsonparser.Object {
			return nil, newRecognizeErrorf(OtherPermanent, "unexpected `result` in AudD response")
		}
		return buildAudDSong(result)

	case "error":
		code, err := jsonparser.GetInt(body, "error", "error_code")
		if err != nil {
			return nil, NewRecognizeError(OtherPermanent, "got `error` status but no error")
		}
		message, _ := jsonparser.GetString(body, "error", "error_message")
		message = fmt.Sprintf("%s (%d)", message, code)

		switch code {
		case auddCodeTokenLimitReached:
			return nil, NewRecognizeError(TokenLimitReached, message)
		case auddCodeInvalidToken:
			return nil, NewRecognizeError(InvalidToken, message)
		case auddCodeFingerprint:
			return nil, NewRecognizeError(Fingerprint, message)
		default:
			return nil, NewRecognizeError(OtherPermanent, message)
		}

	default:
		return nil, newRecognizeErrorf(OtherPermanent, "got invalid status response of %s", status)
	}
}

func buildAudDSong(result []byte) (*models.Song, *RecognizeError) {
	title, err := requiredString(result, "title")
	if err != nil {
		return nil, err
	}
	artist, err := requiredString(result, "artist")
	if err != nil {
		return nil, err
	}
	infoLink, err := requiredString(result, "song_link")
	if err != nil {
		return nil, err
	}

	song := models.NewSong(models.UidFrom("AudD", infoLink), title, artist, optionalString(result, "album"))
	song.ReleaseDate = optionalString(result, "release_date")

	song.SetExternalLink(models.AudDUrl, infoLink)
	song.SetExternalLink(models.YoutubeSearchTerm, fmt.Sprintf("%s - %s", artist, title))

	var albumImages, playbackLinks []string

	if spotify, dataType, _, err := jsonparser.Get(result, "spotify"); err == nil && dataType == jsonparser.Object {
		if image := optionalString(spotify, "album", "images", "[0]", "url"); image != "" {
			albumImages = append(albumImages, image)
		}
		if preview := optionalString(spotify, "preview_url"); preview != "" {
			playbackLinks = append(playbackLinks, preview)
		}
		if url := optionalString(spotify, "external_urls", "spotify"); url != "" {
			song.SetExternalLink(models.SpotifyUrl, url)
		}
	}

	if apple, dataType, _, err := jsonparser.Get(result, "apple_music"); err == nil && dataType == jsonparser.Object {
		if url := optionalString(apple, "url"); url != "" {
			song.SetExternalLink(models.AppleMusicUrl, url)
		}

		var lastPreview string
		_, _ = jsonparser.ArrayEach(apple, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			if url := optionalString(value, "url"); url != "" {
				lastPreview = url
			}
		}, "previews")
		if lastPreview != "" {
			playbackLinks = append(playbackLinks, lastPreview)
		}

		if artwork := optionalString(apple, "artwork", "url"); artwork != "" {
			artwork = strings.ReplaceAll(artwork, "{w}", auddArtworkSize)
			artwork = strings.ReplaceAll(artwork, "{h}", auddArtworkSize)
			albumImages = append(albumImages, artwork)
		}
	}

	if lyrics := optionalString(result, "lyrics", "lyrics"); lyrics != "" {
		song.Lyrics = lyrics
	}

	if len(albumImages) > 0 {
		song.AlbumArtLink = albumImages[0]
	}
	if len(playbackLinks) > 0 {
		song.PlaybackLink = playbackLinks[0]
	}

	return song, nil
}

func requiredString(data []byte, keys ...string) (string, *RecognizeError) {
	value, dataType, _, err := jsonparser.Get(data, keys...)
	if err != nil {
		return "", newRecognizeErrorf(OtherPermanent, "missing `%s` field", strings.Join(keys, "."))
	}
	if dataType != jsonparser.String {
		return "", newRecognizeErrorf(OtherPermanent, "expected `str` but got `%s`", value)
	}
	s, err := jsonparser.ParseString(value)
	if err != nil {
		return "", newRecognizeErrorf(OtherPermanent, "invalid `%s` field: %v", strings.Join(keys, "."), err)
	}
	return s, nil
}

// optionalString returns "" for missing, null or non-string values.
func optionalString(data []byte, keys ...string) string {
	s, err := jsonparser.GetString(data, keys...)
	if err != nil {
		return ""
	}
	return s
}
