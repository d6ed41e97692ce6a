package recognizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"song-recognition/logger"
	"song-recognition/models"
	"song-recognition/network"
	"song-recognition/provider"
	"song-recognition/wav"
)

type State int

const (
	StateNull State = iota
	StateListening
	StateRecognizing
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateRecognizing:
		return "recognizing"
	default:
		return "null"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Capturer records encoded audio from a device.
type Capturer interface {
	Start(device string, onPeak func(float64)) error
	Stop() ([]byte, error)
}

// DeviceLookupFunc resolves the device to record from.
type DeviceLookupFunc func(ctx context.Context, source wav.AudioSource) (string, error)

// Network reports connectivity and its changes.
type Network interface {
	Connectivity() network.Connectivity
	Subscribe(fn func(network.Connectivity)) func()
}

// Enricher adds extra links to a recognized song.
type Enricher interface {
	Enrich(ctx context.Context, song *models.Song) error
}

type Options struct {
	Capturer     Capturer
	DeviceLookup DeviceLookupFunc
	Network      Network
	Recordings   *Recordings
	Settings     provider.Settings
	AudioSource  wav.AudioSource
	// Enricher is optional
	Enricher Enricher
	// Now defaults to time.Now
	Now func() time.Time
}

// Recognizer runs listen/recognize cycles and retries saved recordings.
type Recognizer struct {
	capturer     Capturer
	deviceLookup DeviceLookupFunc
	network      Network
	recordings   *Recordings
	enricher     Enricher
	now          func() time.Time

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	provider provider.Provider
	source   wav.AudioSource
	offline  bool

	peak atomic.Uint64

	sweepMu      sync.Mutex
	sweeping     bool
	sweepPending bool

	events eventBus
}

func New(opts Options) *Recognizer {
	deviceLookup := opts.DeviceLookup
	if deviceLookup == nil {
		deviceLookup = wav.DefaultDeviceName
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &Recognizer{
		capturer:     opts.Capturer,
		deviceLookup: deviceLookup,
		network:      opts.Network,
		recordings:   opts.Recordings,
		enricher:     opts.Enricher,
		now:          now,
		provider:     opts.Settings.Provider(),
		source:       opts.AudioSource,
	}
	if r.network != nil {
		r.offline = r.network.Connectivity() == network.LocalOnly
	}
	r.recordings.OnItemsChanged(func(position, removed, added int) {
		r.events.emit(Event{
			Type:     SavedRecordingsChanged,
			State:    r.State(),
			Position: position,
			Removed:  removed,
			Added:    added,
		})
	})
	return r
}

// Subscribe registers fn for every event and returns a func that removes it.
func (r *Recognizer) Subscribe(fn func(Event)) func() {
	return r.events.subscribe(fn)
}

func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recognizer) setState(state State) {
	r.mu.Lock()
	if r.state == state {
		r.mu.Unlock()
		return
	}
	r.state = state
	r.mu.Unlock()

	r.stateChanged(state)
}

func (r *Recognizer) stateChanged(state State) {
	logger.Debug("[recognizer] state changed", logger.String("state", state.String()))
	r.events.emit(Event{Type: StateChanged, State: state})
}

func (r *Recognizer) IsOfflineMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offline
}

// Provider is the provider used by the next cycle or sweep.
func (r *Recognizer) Provider() provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.provider
}

// ApplySettings swaps the active provider for the one settings select.
func (r *Recognizer) ApplySettings(settings provider.Settings) {
	r.SetProvider(settings.Provider())
}

// SetProvider swaps the active provider. a running cycle keeps the provider
// it started with.
func (r *Recognizer) SetProvider(p provider.Provider) {
	r.mu.Lock()
	r.provider = p
	r.mu.Unlock()

	logger.Info("[recognizer] provider changed", logger.String("provider", p.String()))
}

func (r *Recognizer) SetAudioSource(source wav.AudioSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
}

// PeakLevel is the last capture loudness in [0, 1], zero when not listening.
func (r *Recognizer) PeakLevel() float64 {
	return math.Float64frombits(r.peak.Load())
}

func (r *Recognizer) setPeak(level float64) {
	r.peak.Store(math.Float64bits(level))
}

func (r *Recognizer) SavedRecordings() *Recordings {
	return r.recordings
}

// PeekRecognizedSavedRecordings lists saved recordings that are done.
func (r *Recognizer) PeekRecognizedSavedRecordings() []*Recording {
	return r.recordings.PeekFiltered(func(rec *Recording) bool { return rec.IsReadyToTake() })
}

// TakeRecognizedSavedRecordings removes and returns saved recordings that
// are done.
func (r *Recognizer) TakeRecognizedSavedRecordings(ctx context.Context) ([]*Recording, error) {
	return r.recordings.TakeFiltered(ctx, func(rec *Recording) bool { return rec.IsReadyToTake() })
}

// ErrBusy is returned by Start when a cycle is already running.
var ErrBusy = errors.New("recognizer: a cycle is already running")

// Toggle starts a cycle when idle and blocks until it ends. when a cycle is
// already running it cancels it, waits for it to wind down and returns nil.
// cancellation is never reported as an error.
func (r *Recognizer) Toggle(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNull {
		r.cancelLocked()
		return nil
	}
	return r.runCycleLocked(ctx)
}

// Start runs a cycle like Toggle but never cancels one: it returns ErrBusy
// when a cycle is already running.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNull {
		r.mu.Unlock()
		return ErrBusy
	}
	return r.runCycleLocked(ctx)
}

// Cancel stops the running cycle and waits for it to wind down. it reports
// whether there was a cycle to cancel and never starts one.
func (r *Recognizer) Cancel() bool {
	r.mu.Lock()
	if r.state == StateNull {
		r.mu.Unlock()
		return false
	}
	r.cancelLocked()
	return true
}

// cancelLocked is called with r.mu held and releases it.
func (r *Recognizer) cancelLocked() {
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	logger.Debug("[recognizer] cancelling")
	cancel()
	<-done
}

// runCycleLocked is called with r.mu held and the state Null. it releases
// the lock and blocks until the cycle ends.
func (r *Recognizer) runCycleLocked(ctx context.Context) error {
	cycleCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.state = StateListening
	r.cancel, r.done = cancel, done
	r.mu.Unlock()

	r.stateChanged(StateListening)

	err := r.recognize(cycleCtx)
	cancel()

	r.mu.Lock()
	r.state = StateNull
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	r.setPeak(0)
	r.stateChanged(StateNull)
	close(done)

	if err != nil && cycleCtx.Err() != nil && errors.Is(err, context.Canceled) {
		logger.Debug("[recognizer] cancelled")
		return nil
	}
	if err != nil {
		var recognizeErr *provider.RecognizeError
		event := Event{Type: RecognizeFailed, State: StateNull, Message: err.Error()}
		if errors.As(err, &recognizeErr) {
			event.Err = recognizeErr
		}
		r.events.emit(event)
	}
	return err
}

func (r *Recognizer) recognize(ctx context.Context) error {
	r.mu.Lock()
	p, source := r.provider, r.source
	r.mu.Unlock()

	device, err := r.deviceLookup(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to find %s device: %w", source, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Debug("[recognizer] listening",
		logger.String("device", device),
		logger.String("provider", p.String()),
		logger.Duration("duration", p.ListenDuration()))

	if err := r.capturer.Start(device, r.setPeak); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}

	timer := time.NewTimer(p.ListenDuration())
	select {
	case <-ctx.Done():
		timer.Stop()
		if _, err := r.capturer.Stop(); err != nil {
			logger.Warn("[recognizer] failed to stop recording", logger.ErrorField(err))
		}
		return ctx.Err()
	case <-timer.C:
	}

	data, err := r.capturer.Stop()
	if err != nil {
		return fmt.Errorf("failed to stop recording: %w", err)
	}
	recordedTime := r.now()
	r.setPeak(0)

	if r.IsOfflineMode() {
		logger.Info("[recognizer] offline, saving recording for later")
		return r.saveForLater(ctx, data, recordedTime,
			provider.NewRecognizeError(provider.Connection, "offline mode is active"))
	}

	r.setState(StateRecognizing)

	song, err := p.Recognize(ctx, data)
	if err != nil {
		var recognizeErr *provider.RecognizeError
		if !errors.As(err, &recognizeErr) {
			return err
		}
		if recognizeErr.IsPermanent() {
			return recognizeErr
		}
		logger.Info("[recognizer] transient failure, saving recording for later",
			logger.String("kind", recognizeErr.Kind.String()))
		return r.saveForLater(ctx, data, recordedTime, recognizeErr)
	}

	song.LastHeard = &recordedTime
	r.enrich(ctx, song)

	logger.Info("[recognizer] recognized",
		logger.String("id", song.ID.String()),
		logger.String("song", song.CopyTerm()))
	r.events.emit(Event{Type: SongRecognized, State: StateRecognizing, Song: song})
	return nil
}

func (r *Recognizer) saveForLater(ctx context.Context, data []byte, recordedTime time.Time, cause *provider.RecognizeError) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := NewRecording(data, recordedTime)
	if err := r.recordings.Insert(context.WithoutCancel(ctx), rec); err != nil {
		return err
	}

	info := rec.Info()
	r.events.emit(Event{Type: RecordingSaved, State: r.State(), Recording: &info, Err: cause})
	return nil
}

func (r *Recognizer) enrich(ctx context.Context, song *models.Song) {
	if r.enricher == nil {
		return
	}
	if err := r.enricher.Enrich(ctx, song); err != nil {
		logger.Warn("[recognizer] failed to enrich song",
			logger.String("id", song.ID.String()),
			logger.ErrorField(err))
	}
}

// Run follows connectivity changes and retries saved recordings once now
// and after every change. it blocks until ctx is done.
func (r *Recognizer) Run(ctx context.Context) error {
	if r.network == nil {
		return errors.New("recognizer has no network monitor")
	}

	changes := make(chan network.Connectivity, 1)
	unsubscribe := r.network.Subscribe(func(c network.Connectivity) {
		select {
		case changes <- c:
		default:
			// drop the stale value and keep the newest
			select {
			case <-changes:
			default:
			}
			select {
			case changes <- c:
			default:
			}
		}
	})
	defer unsubscribe()

	r.updateOfflineMode(r.network.Connectivity())

	var wg sync.WaitGroup
	defer wg.Wait()

	sweep := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.RetrySaved(ctx); err != nil && ctx.Err() == nil {
				logger.Error("[recognizer] retry sweep failed", logger.ErrorField(err))
			}
		}()
	}
	sweep()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			r.updateOfflineMode(c)
			sweep()
		}
	}
}

func (r *Recognizer) updateOfflineMode(c network.Connectivity) {
	offline := c == network.LocalOnly

	r.mu.Lock()
	changed := r.offline != offline
	r.offline = offline
	state := r.state
	r.mu.Unlock()

	if changed {
		logger.Info("[recognizer] offline mode changed", logger.Bool("offline", offline))
		r.events.emit(Event{Type: OfflineModeChanged, State: state, Offline: offline})
	}
}

// RetrySaved retries every saved recording that is neither recognized nor
// failed permanently and still has retries left. only one sweep runs at a
// time; a call during a sweep makes that sweep run once more when done.
func (r *Recognizer) RetrySaved(ctx context.Context) error {
	r.sweepMu.Lock()
	if r.sweeping {
		r.sweepPending = true
		r.sweepMu.Unlock()
		return nil
	}
	r.sweeping = true
	r.sweepMu.Unlock()

	for {
		err := r.sweep(ctx)

		r.sweepMu.Lock()
		if err != nil || !r.sweepPending {
			r.sweeping = false
			r.sweepPending = false
			r.sweepMu.Unlock()
			return err
		}
		r.sweepPending = false
		r.sweepMu.Unlock()
	}
}

func (r *Recognizer) sweep(ctx context.Context) error {
	if r.IsOfflineMode() {
		logger.Debug("[recognizer] offline, skipping retry sweep")
		return nil
	}

	pending := r.recordings.PeekFiltered((*Recording).isRetryable)
	if len(pending) == 0 {
		return nil
	}

	p := r.Provider()
	logger.Info("[recognizer] retrying saved recordings",
		logger.Int("count", len(pending)),
		logger.String("provider", p.String()))

	for _, rec := range pending {
		if r.IsOfflineMode() {
			logger.Info("[recognizer] went offline, aborting retry sweep")
			return nil
		}

		song, err := p.Recognize(ctx, rec.Bytes())

		var recognizeErr *provider.RecognizeError
		if err != nil && !errors.As(err, &recognizeErr) {
			return err
		}
		if song != nil {
			recordedTime := rec.RecordedTime()
			song.LastHeard = &recordedTime
			r.enrich(ctx, song)
		}

		if err := r.recordings.RecordAttempt(ctx, rec, song, recognizeErr); err != nil {
			logger.Warn("[recognizer] failed to record retry result",
				logger.String("key", rec.Key()),
				logger.ErrorField(err))
			continue
		}

		if recognizeErr != nil {
			logger.Debug("[recognizer] retry failed",
				logger.String("key", rec.Key()),
				logger.String("kind", recognizeErr.Kind.String()),
				logger.Int("retries", rec.RecognizeRetries()))
		} else {
			logger.Info("[recognizer] saved recording recognized",
				logger.String("key", rec.Key()),
				logger.String("song", song.CopyTerm()))
		}
	}
	return nil
}
