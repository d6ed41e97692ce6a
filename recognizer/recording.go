package recognizer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"song-recognition/models"
	"song-recognition/provider"
)

// MaxRecognizeRetries bounds how often the sweep retries one recording. a
// recording stays eligible while its retry count is at most this value.
const MaxRecognizeRetries = 3

// RecognizeResult is the outcome of the last attempt on a saved recording.
// exactly one of Song and Err is set.
type RecognizeResult struct {
	Song *models.Song             `json:"ok,omitempty"`
	Err  *provider.RecognizeError `json:"err,omitempty"`
}

// Recording is captured audio that could not be recognized right away.
type Recording struct {
	mu           sync.RWMutex
	key          string
	bytes        []byte
	recordedTime time.Time
	result       *RecognizeResult
	// retries is kept in memory only and starts over every run
	retries int
}

func NewRecording(bytes []byte, recordedTime time.Time) *Recording {
	return &Recording{bytes: bytes, recordedTime: recordedTime}
}

// Key is the store key, empty until the recording is inserted.
func (r *Recording) Key() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.key
}

func (r *Recording) Bytes() []byte {
	return r.bytes
}

func (r *Recording) RecordedTime() time.Time {
	return r.recordedTime
}

func (r *Recording) RecognizeResult() *RecognizeResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

func (r *Recording) RecognizeRetries() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.retries
}

// IsReadyToTake reports whether nothing is left to retry: the recording was
// recognized or failed permanently.
func (r *Recording) IsReadyToTake() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return isReadyToTake(r.result)
}

func isReadyToTake(result *RecognizeResult) bool {
	if result == nil {
		return false
	}
	if result.Err != nil {
		return result.Err.IsPermanent()
	}
	return result.Song != nil
}

// isRetryable is the sweep filter.
func (r *Recording) isRetryable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !isReadyToTake(r.result) && r.retries <= MaxRecognizeRetries
}

// applyAttempt records the outcome of one recognition attempt. a failed
// attempt counts as a retry.
func (r *Recording) applyAttempt(song *models.Song, err *provider.RecognizeError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.retries++
		r.result = &RecognizeResult{Err: err}
		return
	}
	r.result = &RecognizeResult{Song: song}
}

type recordingJSON struct {
	Bytes           []byte           `json:"bytes"`
	RecordedTime    time.Time        `json:"recorded_time"`
	RecognizeResult *RecognizeResult `json:"recognize_result"`
}

// MarshalJSON produces the stored form. retries are not part of it.
func (r *Recording) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return json.Marshal(recordingJSON{
		Bytes:           r.bytes,
		RecordedTime:    r.recordedTime,
		RecognizeResult: r.result,
	})
}

func (r *Recording) UnmarshalJSON(data []byte) error {
	var v recordingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.RecognizeResult != nil && v.RecognizeResult.Song == nil && v.RecognizeResult.Err == nil {
		return fmt.Errorf("recognize result has neither song nor error")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes = v.Bytes
	r.recordedTime = v.RecordedTime
	r.result = v.RecognizeResult
	r.retries = 0
	return nil
}

// RecordingInfo is a snapshot of a recording without its audio.
type RecordingInfo struct {
	Key          string                   `json:"key"`
	RecordedTime time.Time                `json:"recorded_time"`
	Size         int                      `json:"size"`
	Retries      int                      `json:"retries"`
	ReadyToTake  bool                     `json:"ready_to_take"`
	Song         *models.Song             `json:"song,omitempty"`
	Err          *provider.RecognizeError `json:"error,omitempty"`
}

func (r *Recording) Info() RecordingInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := RecordingInfo{
		Key:          r.key,
		RecordedTime: r.recordedTime,
		Size:         len(r.bytes),
		Retries:      r.retries,
		ReadyToTake:  isReadyToTake(r.result),
	}
	if r.result != nil {
		info.Song = r.result.Song
		info.Err = r.result.Err
	}
	return info
}
