package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"song-recognition/config"
	"song-recognition/models"
	"song-recognition/provider"
	"song-recognition/recognizer"
)

func setupEnv(t *testing.T, providerName string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "data", "recordings.db"))
	t.Setenv("PROVIDER", providerName)
	t.Setenv("TEST_LISTEN_DURATION", "0s")
	t.Setenv("TEST_RECOGNIZE_DURATION", "0s")
	t.Setenv("CONNECTIVITY_PROBE", "127.0.0.1:1")
	t.Setenv("SETTINGS_FILE", "")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	recognizeWorkers, recognizeSave, listenSource, servePort = 0, false, "", "5000"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeAudio(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("OggS fake audio"), 0o644))
	return path
}

func TestCollectAudioFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeAudio(t, dir, "songs/a.mp3")
	b := writeAudio(t, dir, "songs/nested/b.FLAC")
	writeAudio(t, dir, "songs/cover.jpg")
	explicit := writeAudio(t, dir, "clip.bin")

	files, err := collectAudioFiles([]string{filepath.Join(dir, "songs"), explicit})
	require.NoError(t, err)
	sort.Strings(files)

	expected := []string{a, b, explicit}
	sort.Strings(expected)
	assert.Equal(t, expected, files)

	_, err = collectAudioFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestRecognizeFilesConcurrently(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e"}
	var running, peak atomic.Int32

	fn := func(ctx context.Context, path string) fileResult {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		if path == "c" {
			return fileResult{err: provider.NewRecognizeError(provider.NoMatches, "")}
		}
		return fileResult{song: models.NewSong(models.UidFrom("Test", path), path, "artist", "")}
	}

	var results []fileResult
	recognizeFilesConcurrently(context.Background(), files, 2, fn, func(r fileResult) {
		results = append(results, r)
	})

	require.Len(t, results, len(files))
	assert.LessOrEqual(t, peak.Load(), int32(2))

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			assert.Equal(t, "c", r.path)
		} else {
			assert.Equal(t, r.path, r.song.Title)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRecognizeFilesConcurrentlyEmpty(t *testing.T) {
	called := false
	recognizeFilesConcurrently(context.Background(), nil, 4, nil, func(fileResult) { called = true })
	assert.False(t, called)
}

func TestPrintSong(t *testing.T) {
	song := models.NewSong(models.UidFrom("Test", "1"), "Amnesia", "5 Seconds of Summer", "Amnesia")
	song.ReleaseDate = "2014-06-24"
	song.SetExternalLink(models.SpotifyUrl, "https://open.spotify.com/track/1")

	var buf bytes.Buffer
	printSong(&buf, song)
	assert.Contains(t, buf.String(), "Amnesia")
	assert.Contains(t, buf.String(), "artist: 5 Seconds of Summer")
	assert.Contains(t, buf.String(), "released: 2014-06-24")
	assert.Contains(t, buf.String(), "https://open.spotify.com/track/1")
	assert.Contains(t, buf.String(), "youtube-search: https://www.youtube.com/results?search_query=5+Seconds+of+Summer+-+Amnesia")

	buf.Reset()
	song.SetExternalLink(models.YoutubeUrl, "https://www.youtube.com/watch?v=abc")
	printSong(&buf, song)
	assert.Contains(t, buf.String(), "https://www.youtube.com/watch?v=abc")
	assert.NotContains(t, buf.String(), "youtube-search:")
}

func TestPrintFileResultDuration(t *testing.T) {
	song := models.NewSong(models.UidFrom("Test", "1"), "Amnesia", "5 Seconds of Summer", "")

	var buf bytes.Buffer
	printFileResult(&buf, fileResult{path: "a.ogg", duration: 12480 * time.Millisecond, song: song})
	assert.Contains(t, buf.String(), "a.ogg (12.5s)")

	buf.Reset()
	printFileResult(&buf, fileResult{path: "b.ogg", song: song})
	assert.Contains(t, buf.String(), "b.ogg\n")
}

func TestPrintRecognizeFailure(t *testing.T) {
	var buf bytes.Buffer
	printRecognizeFailure(&buf, provider.NewRecognizeError(provider.TokenLimitReached, "quota"))
	assert.Contains(t, buf.String(), "quota")

	buf.Reset()
	printRecognizeFailure(&buf, errors.New("disk on fire"))
	assert.Contains(t, buf.String(), "disk on fire")
}

func TestPrintRecording(t *testing.T) {
	info := recognizer.RecordingInfo{
		RecordedTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Size:         2048,
		Retries:      1,
		Err:          provider.NewRecognizeError(provider.Connection, ""),
	}

	var buf bytes.Buffer
	printRecording(&buf, 0, info)
	assert.Contains(t, buf.String(), "2.0 KB")
	assert.Contains(t, buf.String(), "connection, retried 1")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "3.0 MB", formatBytes(3<<20))
}

func TestRecognizeCommand(t *testing.T) {
	dir := setupEnv(t, "audd-mock")
	t.Setenv("TEST_PROVIDER_MODE", "valid-only")
	writeAudio(t, dir, "songs/a.ogg")
	writeAudio(t, dir, "songs/b.ogg")

	out, err := execute(t, "recognize", "-w", "2", filepath.Join(dir, "songs"))
	require.NoError(t, err)
	assert.Contains(t, out, "processed 2 files")
	assert.Contains(t, out, "2 recognized")
	assert.Contains(t, out, "is a test provider")
}

func TestRecognizeCommandNoFiles(t *testing.T) {
	dir := setupEnv(t, "audd-mock")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))

	_, err := execute(t, "recognize", filepath.Join(dir, "empty"))
	assert.EqualError(t, err, "no audio files found")
}

func TestSavedQueueCommands(t *testing.T) {
	dir := setupEnv(t, "error-tester")
	file := writeAudio(t, dir, "clip.ogg")

	// the first error-tester answer is a connection error, which is kept
	out, err := execute(t, "recognize", "--save", file)
	assert.ErrorIs(t, err, errRecognizeFailed)
	assert.Contains(t, out, "1 failed")

	out, err = execute(t, "saved")
	require.NoError(t, err)
	assert.Contains(t, out, "15 B")
	assert.Contains(t, out, "pending")

	out, err = execute(t, "take")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing ready yet")

	out, err = execute(t, "erase")
	require.NoError(t, err)
	assert.Contains(t, out, "erased 1 recordings")

	out, err = execute(t, "saved")
	require.NoError(t, err)
	assert.Contains(t, out, "no saved recordings")
}

func TestRetryCommandRecognizesSaved(t *testing.T) {
	dir := setupEnv(t, "audd-mock")
	file := writeAudio(t, dir, "clip.ogg")

	t.Setenv("PROVIDER", "error-tester")
	_, err := execute(t, "recognize", "--save", file)
	require.ErrorIs(t, err, errRecognizeFailed)

	t.Setenv("PROVIDER", "audd-mock")
	t.Setenv("TEST_PROVIDER_MODE", "valid-only")
	out, err := execute(t, "retry")
	require.NoError(t, err)
	assert.NotContains(t, out, "pending")

	out, err = execute(t, "take")
	require.NoError(t, err)
	assert.Contains(t, out, "took 1 recordings, 0 left")
}

func TestBackgroundStartsOfflineWithoutRetrying(t *testing.T) {
	dir := setupEnv(t, "error-tester")
	file := writeAudio(t, dir, "clip.ogg")
	_, err := execute(t, "recognize", "--save", file)
	require.ErrorIs(t, err, errRecognizeFailed)

	// an address without a port counts as local only without touching the network
	t.Setenv("CONNECTIVITY_PROBE", "no-port")
	ctx := context.Background()
	a, err := newApp(ctx, config.Load(), true)
	require.NoError(t, err)
	defer a.close()
	assert.True(t, a.recognizer.IsOfflineMode())

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	a.runBackground(runCtx)

	recs := a.recordings.PeekFiltered(func(*recognizer.Recording) bool { return true })
	require.Len(t, recs, 1)
	assert.Equal(t, 0, recs[0].RecognizeRetries())
	assert.Nil(t, recs[0].RecognizeResult())
}
