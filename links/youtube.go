package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"song-recognition/logger"
	"song-recognition/models"
)

const watchURL = "https://www.youtube.com/watch?v="

var ErrNoAPIKey = errors.New("youtube api key is not set")

// YouTube resolves a song's search term to a video link.
type YouTube struct {
	service *youtube.Service
}

// NewYouTube creates an enricher using the Data API. extra options are
// appended after the key, which lets tests point it at a local server.
func NewYouTube(ctx context.Context, apiKey string, opts ...option.ClientOption) (*YouTube, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &YouTube{service: service}, nil
}

// Enrich sets the YoutubeUrl link from the first search hit. songs that
// already have one are left alone; no hit is not an error.
func (y *YouTube) Enrich(ctx context.Context, song *models.Song) error {
	if _, ok := song.ExternalLinks[models.YoutubeUrl]; ok {
		return nil
	}

	term := searchTerm(song)
	id, err := y.searchVideoID(ctx, term)
	if err != nil {
		return err
	}
	if id == "" {
		logger.Debug("[links] no youtube video found", logger.String("term", term))
		return nil
	}

	song.SetExternalLink(models.YoutubeUrl, watchURL+id)
	return nil
}

func (y *YouTube) searchVideoID(ctx context.Context, term string) (string, error) {
	call := y.service.Search.List([]string{"id"}).
		Q(term).
		Type("video").
		MaxResults(1).
		Context(ctx)

	response, err := call.Do()
	if err != nil {
		return "", fmt.Errorf("youtube search failed: %w", err)
	}

	for _, item := range response.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", nil
}

func searchTerm(song *models.Song) string {
	if term := song.ExternalLinks[models.YoutubeSearchTerm]; term != "" {
		return term
	}
	return song.CopyTerm()
}

// SearchURL is the YouTube results page for the song, usable without an API
// key.
func SearchURL(song *models.Song) string {
	return "https://www.youtube.com/results?search_query=" + url.QueryEscape(searchTerm(song))
}
