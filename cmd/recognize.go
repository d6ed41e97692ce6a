package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"song-recognition/logger"
	"song-recognition/models"
	"song-recognition/provider"
	"song-recognition/recognizer"
	"song-recognition/wav"
)

var (
	recognizeWorkers int
	recognizeSave    bool
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <file_or_dir>...",
	Short: "Recognize audio files with the active provider",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecognize,
}

func init() {
	recognizeCmd.Flags().IntVarP(&recognizeWorkers, "workers", "w", 0, "concurrent recognitions (default half the CPUs)")
	recognizeCmd.Flags().BoolVar(&recognizeSave, "save", false, "keep files that failed transiently in the retry queue")
}

var audioExtensions = map[string]bool{
	".wav":  true,
	".m4a":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

// collectAudioFiles expands directories into the audio files below them.
// explicit file arguments are kept whatever their extension.
func collectAudioFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(fp string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && audioExtensions[strings.ToLower(filepath.Ext(fp))] {
				files = append(files, fp)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

type fileResult struct {
	path string
	// duration is zero when ffprobe could not tell
	duration time.Duration
	song     *models.Song
	err      error
}

type recognizeFunc func(ctx context.Context, path string) fileResult

// recognizeFilesConcurrently runs fn over files on a bounded worker pool and
// hands each result to onResult as it completes.
func recognizeFilesConcurrently(ctx context.Context, files []string, workers int, fn recognizeFunc, onResult func(fileResult)) {
	numFiles := len(files)
	if numFiles == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU() / 2
	}
	if numFiles < workers {
		workers = numFiles
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string, numFiles)
	results := make(chan fileResult, numFiles)

	for w := 0; w < workers; w++ {
		go func() {
			for fp := range jobs {
				result := fn(ctx, fp)
				result.path = fp
				results <- result
			}
		}()
	}

	for _, fp := range files {
		jobs <- fp
	}
	close(jobs)

	for i := 0; i < numFiles; i++ {
		onResult(<-results)
	}
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	files, err := collectAudioFiles(args)
	if err != nil {
		return xerrors.New("failed to collect files", err)
	}
	if len(files) == 0 {
		return errors.New("no audio files found")
	}

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.close()

	p := a.recognizer.Provider()
	out := cmd.OutOrStdout()
	logger.Info("[recognize] starting", logger.Int("files", len(files)), logger.String("provider", p.String()))
	printProvider(out, p)

	recognizeFile := func(ctx context.Context, path string) fileResult {
		data, err := os.ReadFile(path)
		if err != nil {
			return fileResult{err: err}
		}

		var result fileResult
		if d, err := wav.ClipDuration(ctx, data); err == nil {
			result.duration = d
			if d < p.ListenDuration() {
				logger.Warn("[recognize] clip shorter than the provider listens for",
					logger.String("file", path),
					logger.Duration("duration", d),
					logger.Duration("listen", p.ListenDuration()))
			}
		} else {
			logger.Debug("[recognize] duration unknown", logger.String("file", path), logger.ErrorField(err))
		}

		result.song, result.err = p.Recognize(ctx, data)

		var recognizeErr *provider.RecognizeError
		if recognizeSave && errors.As(result.err, &recognizeErr) && !recognizeErr.IsPermanent() {
			rec := recognizer.NewRecording(data, time.Now())
			if saveErr := a.recordings.Insert(ctx, rec); saveErr != nil {
				logger.Error("[recognize] failed to save recording", logger.String("file", path), logger.ErrorField(saveErr))
			}
		}
		return result
	}

	start := time.Now()
	recognized, failed := 0, 0
	recognizeFilesConcurrently(ctx, files, recognizeWorkers, recognizeFile, func(r fileResult) {
		printFileResult(out, r)
		if r.err != nil {
			failed++
		} else {
			recognized++
		}
	})

	fmt.Fprintf(out, "\nprocessed %d files in %s: %s, %s\n",
		len(files),
		time.Since(start).Round(time.Millisecond),
		green(fmt.Sprintf("%d recognized", recognized)),
		red(fmt.Sprintf("%d failed", failed)))

	if failed > 0 && recognized == 0 {
		return errRecognizeFailed
	}
	return ctx.Err()
}

func printFileResult(w io.Writer, r fileResult) {
	if r.duration > 0 {
		fmt.Fprintln(w, faint(fmt.Sprintf("%s (%s)", r.path, r.duration.Round(100*time.Millisecond))))
	} else {
		fmt.Fprintln(w, faint(r.path))
	}
	if r.err != nil {
		printRecognizeFailure(w, r.err)
		return
	}
	printSong(w, r.song)
}
