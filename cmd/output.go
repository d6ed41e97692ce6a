package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"song-recognition/links"
	"song-recognition/models"
	"song-recognition/provider"
	"song-recognition/recognizer"
)

var (
	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	amber = color.New(color.FgYellow).SprintFunc()
)

func printProvider(w io.Writer, p provider.Provider) {
	if p.IsTest() {
		fmt.Fprintln(w, amber(p.String()+" is a test provider, results are canned"))
	}
}

func printSong(w io.Writer, song *models.Song) {
	fmt.Fprintf(w, "%s %s\n", green("♪"), bold(song.Title))
	fmt.Fprintf(w, "  artist: %s\n", song.Artist)
	if song.Album != "" {
		fmt.Fprintf(w, "  album:  %s\n", song.Album)
	}
	if song.ReleaseDate != "" {
		fmt.Fprintf(w, "  released: %s\n", song.ReleaseDate)
	}

	keys := make([]string, 0, len(song.ExternalLinks))
	for key := range song.ExternalLinks {
		if key == models.YoutubeSearchTerm {
			continue
		}
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "  %s %s\n", faint(key+":"), song.ExternalLinks[models.ExternalLinkKey(key)])
	}
	if song.ExternalLinks[models.YoutubeUrl] == "" {
		fmt.Fprintf(w, "  %s %s\n", faint("youtube-search:"), links.SearchURL(song))
	}
}

// printRecognizeFailure prints err as a RecognizeError title and
// description, or as a plain error.
func printRecognizeFailure(w io.Writer, err error) {
	var recognizeErr *provider.RecognizeError
	if !errors.As(err, &recognizeErr) {
		fmt.Fprintf(w, "%s %v\n", red("✗"), err)
		return
	}

	mark := red("✗")
	if !recognizeErr.IsPermanent() {
		mark = amber("↻")
	}
	fmt.Fprintf(w, "%s %s\n", mark, bold(recognizeErr.Title()))
	fmt.Fprintf(w, "  %s\n", recognizeErr.Description())
	if recognizeErr.Message != "" {
		fmt.Fprintf(w, "  %s\n", faint(recognizeErr.Message))
	}
}

func printRecording(w io.Writer, i int, info recognizer.RecordingInfo) {
	status := amber("pending")
	switch {
	case info.Song != nil:
		status = green(fmt.Sprintf("%s by %s", info.Song.Title, info.Song.Artist))
	case info.Err != nil && info.ReadyToTake:
		status = red(info.Err.Title())
	case info.Err != nil:
		status = amber(fmt.Sprintf("%s, retried %d", info.Err.Kind, info.Retries))
	}

	fmt.Fprintf(w, "%3d  %s  %8s  %s\n",
		i+1,
		info.RecordedTime.Local().Format(time.DateTime),
		formatBytes(int64(info.Size)),
		status)
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
