package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"song-recognition/provider"
	"song-recognition/recognizer"
	"song-recognition/wav"
)

var errRecognizeFailed = errors.New("recognition failed")

var listenSource string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Capture audio once and recognize it",
	Long: "Capture audio from the microphone or desktop audio and recognize it with the active provider. " +
		"Offline or transient failures keep the recording for a later retry. Ctrl-C cancels.",
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenSource, "source", "s", "", "audio source: microphone or desktop-audio")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	if listenSource != "" {
		a.recognizer.SetAudioSource(wav.ParseAudioSource(listenSource))
	}

	out := cmd.OutOrStdout()
	printProvider(out, a.recognizer.Provider())
	unsubscribe := a.recognizer.Subscribe(func(e recognizer.Event) {
		switch e.Type {
		case recognizer.StateChanged:
			switch e.State {
			case recognizer.StateListening:
				fmt.Fprintln(out, faint("listening..."))
			case recognizer.StateRecognizing:
				fmt.Fprintln(out, faint("recognizing with "+a.recognizer.Provider().String()+"..."))
			}
		case recognizer.SongRecognized:
			printSong(out, e.Song)
		case recognizer.RecordingSaved:
			if e.Err != nil {
				printRecognizeFailure(out, e.Err)
			}
			fmt.Fprintln(out, amber("recording saved, it will be retried when online"))
		}
	})
	defer unsubscribe()

	err = a.recognizer.Toggle(ctx)
	var recognizeErr *provider.RecognizeError
	if errors.As(err, &recognizeErr) {
		printRecognizeFailure(out, recognizeErr)
		return errRecognizeFailed
	}
	return err
}
