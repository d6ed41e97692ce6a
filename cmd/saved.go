package cmd

import (
	"fmt"
	"io"

	"github.com/mdobak/go-xerrors"
	"github.com/spf13/cobra"

	"song-recognition/recognizer"
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List recordings waiting in the retry queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		printRecordings(cmd.OutOrStdout(), a.recordings.PeekFiltered(func(*recognizer.Recording) bool { return true }))
		return nil
	},
}

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Remove and print the saved recordings that reached a final result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		taken, err := a.recognizer.TakeRecognizedSavedRecordings(ctx)
		if err != nil {
			return xerrors.New("failed to take recordings", err)
		}

		out := cmd.OutOrStdout()
		if len(taken) == 0 {
			fmt.Fprintln(out, faint("nothing ready yet"))
			return nil
		}
		for _, rec := range taken {
			result := rec.RecognizeResult()
			switch {
			case result.Song != nil:
				printSong(out, result.Song)
			case result.Err != nil:
				printRecognizeFailure(out, result.Err)
			}
		}
		fmt.Fprintf(out, "\ntook %d recordings, %d left\n", len(taken), a.recordings.Len())
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry recognizing saved recordings now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.close()

		out := cmd.OutOrStdout()
		if a.recognizer.IsOfflineMode() {
			fmt.Fprintln(out, amber("offline, nothing retried"))
			return nil
		}

		if err := a.recognizer.RetrySaved(ctx); err != nil {
			return xerrors.New("retry sweep failed", err)
		}
		printRecordings(out, a.recordings.PeekFiltered(func(*recognizer.Recording) bool { return true }))
		return nil
	},
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Delete every saved recording",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		removed, err := a.recordings.TakeFiltered(ctx, func(*recognizer.Recording) bool { return true })
		if err != nil {
			return xerrors.New("failed to erase recordings", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "erased %d recordings\n", len(removed))
		return nil
	},
}

func printRecordings(w io.Writer, recs []*recognizer.Recording) {
	if len(recs) == 0 {
		fmt.Fprintln(w, faint("no saved recordings"))
		return
	}
	for i, rec := range recs {
		printRecording(w, i, rec.Info())
	}
}
