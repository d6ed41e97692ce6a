package provider

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"song-recognition/logger"
	"song-recognition/models"
)

type TestMode int

const (
	ValidOnly TestMode = iota
	ErrorOnly
	Both
)

var testModeNames = map[TestMode]string{
	ValidOnly: "valid-only",
	ErrorOnly: "error-only",
	Both:      "both",
}

func (m TestMode) String() string {
	if name, ok := testModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(m))
}

func ParseTestMode(s string) (TestMode, error) {
	for mode, name := range testModeNames {
		if strings.EqualFold(name, s) {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown test provider mode %q", s)
}

// MockOutcome is a scripted result: exactly one of Song and Err is set.
type MockOutcome struct {
	Song *models.Song
	Err  *RecognizeError
}

// AudDMock answers with canned AudD responses after RecognizeDuration. when
// Script is set, outcomes are served from it in order and the last one
// repeats.
type AudDMock struct {
	Listen            time.Duration
	RecognizeDuration time.Duration
	Mode              TestMode
	Script            []MockOutcome

	mu    sync.Mutex
	calls int
	rng   *rand.Rand
}

func NewAudDMock(mode TestMode, listen, recognize time.Duration) *AudDMock {
	return &AudDMock{Listen: listen, RecognizeDuration: recognize, Mode: mode}
}

func (m *AudDMock) ListenDuration() time.Duration {
	return m.Listen
}

// Calls is the number of Recognize calls made so far.
func (m *AudDMock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *AudDMock) Recognize(ctx context.Context, _ []byte) (*models.Song, error) {
	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if err := sleepCtx(ctx, m.RecognizeDuration); err != nil {
		return nil, err
	}

	if len(m.Script) > 0 {
		outcome := m.Script[len(m.Script)-1]
		if call < len(m.Script) {
			outcome = m.Script[call]
		}
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		return outcome.Song, nil
	}

	raw := m.pickResponse()
	logger.Debug("[audd-mock] random response", logger.String("response", raw))

	song, err := parseAudDResponse([]byte(raw))
	if err != nil {
		return nil, err
	}
	return song, nil
}

func (m *AudDMock) pickResponse() string {
	var pool []string
	switch m.Mode {
	case ErrorOnly:
		pool = mockErrorResponses
	case Both:
		pool = append(append([]string{}, mockErrorResponses...), mockValidResponses...)
	default:
		pool = mockValidResponses
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return pool[m.rng.Intn(len(pool))]
}

// ErrorTester fails every call, cycling through all error kinds.
type ErrorTester struct {
	Listen            time.Duration
	RecognizeDuration time.Duration

	mu   sync.Mutex
	next int
}

func NewErrorTester(listen, recognize time.Duration) *ErrorTester {
	return &ErrorTester{Listen: listen, RecognizeDuration: recognize}
}

var errorTesterSequence = []*RecognizeError{
	NewRecognizeError(Connection, "connection error message"),
	NewRecognizeError(TokenLimitReached, "token limit reached error message"),
	NewRecognizeError(InvalidToken, "invalid token error message"),
	NewRecognizeError(Fingerprint, "fingerprint error message"),
	NewRecognizeError(NoMatches, "no matches error message"),
	NewRecognizeError(OtherPermanent, "other permanent error message"),
}

func (e *ErrorTester) ListenDuration() time.Duration {
	return e.Listen
}

func (e *ErrorTester) Recognize(ctx context.Context, _ []byte) (*models.Song, error) {
	e.mu.Lock()
	err := errorTesterSequence[e.next]
	e.next = (e.next + 1) % len(errorTesterSequence)
	e.mu.Unlock()

	if ctxErr := sleepCtx(ctx, e.RecognizeDuration); ctxErr != nil {
		return nil, ctxErr
	}

	copied := *err
	return nil, &copied
}
