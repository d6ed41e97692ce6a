package recognizer

import (
	"sync"

	"song-recognition/models"
	"song-recognition/provider"
)

type EventType string

const (
	StateChanged           EventType = "state-changed"
	SongRecognized         EventType = "song-recognized"
	RecordingSaved         EventType = "recording-saved"
	RecognizeFailed        EventType = "recognize-failed"
	OfflineModeChanged     EventType = "offline-mode-changed"
	SavedRecordingsChanged EventType = "saved-recordings-changed"
)

// Event is delivered to subscribers. only the fields relevant to Type are set.
type Event struct {
	Type      EventType                `json:"type"`
	State     State                    `json:"state"`
	Song      *models.Song             `json:"song,omitempty"`
	Recording *RecordingInfo           `json:"recording,omitempty"`
	Err       *provider.RecognizeError `json:"error,omitempty"`
	// Message carries local failures that are not recognize errors
	Message string `json:"message,omitempty"`
	Offline bool   `json:"offline"`

	Position int `json:"position"`
	Removed  int `json:"removed"`
	Added    int `json:"added"`
}

type eventBus struct {
	mu       sync.Mutex
	handlers map[int]func(Event)
	nextID   int
}

func (b *eventBus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = map[int]func(Event){}
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// emit calls the handlers outside the lock so they may call back into the
// recognizer.
func (b *eventBus) emit(e Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
}
