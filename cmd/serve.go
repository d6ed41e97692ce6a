package cmd

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"song-recognition/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "5000", "port to use")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.watchSettings(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runBackground(ctx)
	}()

	err = server.New(ctx, a.recognizer).ListenAndServe(ctx, servePort)
	cancel()
	wg.Wait()
	return err
}
