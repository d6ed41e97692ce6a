package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"song-recognition/logger"
	"song-recognition/models"
	"song-recognition/provider"
	"song-recognition/recognizer"
)

const maxUploadSize = 50 << 20 // 50 MB

type stateResponse struct {
	State           recognizer.State `json:"state"`
	Offline         bool             `json:"offline"`
	PeakLevel       float64          `json:"peak_level"`
	Provider        string           `json:"provider"`
	SavedRecordings int              `json:"saved_recordings"`
}

type toggleResponse struct {
	Action string `json:"action"`
}

type recognizeErrorResponse struct {
	Error       string                      `json:"error"`
	Kind        provider.RecognizeErrorKind `json:"kind"`
	Message     string                      `json:"message,omitempty"`
	Description string                      `json:"description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	logger.Warn("[http] error response", logger.Int("status", status), logger.String("error", msg))
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeRecognizeError(w http.ResponseWriter, err *provider.RecognizeError) {
	status := http.StatusUnprocessableEntity
	switch err.Kind {
	case provider.Connection:
		status = http.StatusServiceUnavailable
	case provider.TokenLimitReached:
		status = http.StatusTooManyRequests
	case provider.InvalidToken:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, recognizeErrorResponse{
		Error:       err.Title(),
		Kind:        err.Kind,
		Message:     err.Message,
		Description: err.Description(),
	})
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func recordingInfos(recs []*recognizer.Recording) []recognizer.RecordingInfo {
	infos := make([]recognizer.RecordingInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, rec.Info())
	}
	return infos
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		State:           s.recognizer.State(),
		Offline:         s.recognizer.IsOfflineMode(),
		PeakLevel:       s.recognizer.PeakLevel(),
		Provider:        s.recognizer.Provider().String(),
		SavedRecordings: s.recognizer.SavedRecordings().Len(),
	})
}

// handleToggle cancels the running cycle and answers once it has wound
// down, or starts a new cycle in the background. outcomes arrive over
// /api/events.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if s.recognizer.Cancel() {
		writeJSON(w, http.StatusOK, toggleResponse{Action: "cancelled"})
		return
	}

	go func() {
		err := s.recognizer.Start(s.ctx)
		switch {
		case errors.Is(err, recognizer.ErrBusy):
			logger.Debug("[server] cycle already running")
		case err != nil:
			logger.Warn("[server] recognize failed", logger.ErrorField(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, toggleResponse{Action: "started"})
}

func readUploadedFile(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("no file provided: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %v", err)
	}
	return data, header.Filename, nil
}

// handleRecognize recognizes an uploaded audio file with the active provider.
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	data, filename, err := readUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := s.recognizer.Provider()
	logger.Info("[recognize] file received",
		logger.String("file", filename),
		logger.String("size", formatBytes(int64(len(data)))),
		logger.String("provider", p.String()))

	song, err := p.Recognize(r.Context(), data)
	if err != nil {
		var recognizeErr *provider.RecognizeError
		if errors.As(err, &recognizeErr) {
			writeRecognizeError(w, recognizeErr)
			return
		}
		// the client went away
		logger.Debug("[recognize] cancelled", logger.ErrorField(err))
		return
	}

	writeJSON(w, http.StatusOK, song)
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recs := s.recognizer.SavedRecordings().PeekFiltered(func(*recognizer.Recording) bool { return true })
	writeJSON(w, http.StatusOK, recordingInfos(recs))
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	taken, err := s.recognizer.TakeRecognizedSavedRecordings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	songs := make([]*models.Song, 0, len(taken))
	for _, rec := range taken {
		if result := rec.RecognizeResult(); result != nil && result.Song != nil {
			songs = append(songs, result.Song)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recordings": recordingInfos(taken),
		"songs":      songs,
	})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.recognizer.RetrySaved(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.handleRecordings(w, r)
}
