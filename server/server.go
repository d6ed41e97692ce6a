package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"song-recognition/logger"
	"song-recognition/recognizer"
)

// Server exposes a Recognizer over HTTP and streams its events over a
// websocket.
type Server struct {
	recognizer *recognizer.Recognizer
	router     *mux.Router
	hub        *hub
	// ctx outlives single requests and bounds cycles started over HTTP
	ctx context.Context
}

func New(ctx context.Context, rec *recognizer.Recognizer) *Server {
	s := &Server{
		recognizer: rec,
		router:     mux.NewRouter(),
		hub:        newHub(),
		ctx:        ctx,
	}
	rec.Subscribe(s.hub.broadcast)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestLogger)
	s.router.Use(corsMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/toggle", s.handleToggle).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/recognize", s.handleRecognize).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/recordings", s.handleRecordings).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/recordings/take", s.handleTake).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/recordings/retry", s.handleRetry).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on port until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[server] starting", logger.String("port", port))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("[server] shutting down")
	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
