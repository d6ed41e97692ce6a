package provider

import (
	"context"
	"fmt"
	"time"

	"song-recognition/models"
)

type Kind int

const (
	KindAudD Kind = iota
	KindShazam
	KindAudDMock
	KindErrorTester
)

var kindNames = map[Kind]string{
	KindAudD:        "audd",
	KindShazam:      "shazam",
	KindAudDMock:    "audd-mock",
	KindErrorTester: "error-tester",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown provider %q", s)
}

// Provider is one of the recognition backends. the zero value is not
// usable; build one with the New* constructors or Settings.Provider.
type Provider struct {
	kind        Kind
	audd        *AudD
	shazam      *Shazam
	mock        *AudDMock
	errorTester *ErrorTester
}

func NewAudDProvider(a *AudD) Provider {
	return Provider{kind: KindAudD, audd: a}
}

func NewShazamProvider(s *Shazam) Provider {
	return Provider{kind: KindShazam, shazam: s}
}

func NewAudDMockProvider(m *AudDMock) Provider {
	return Provider{kind: KindAudDMock, mock: m}
}

func NewErrorTesterProvider(e *ErrorTester) Provider {
	return Provider{kind: KindErrorTester, errorTester: e}
}

func (p Provider) Kind() Kind {
	return p.kind
}

func (p Provider) String() string {
	return p.kind.String()
}

// IsTest reports whether the provider returns canned results.
func (p Provider) IsTest() bool {
	return p.kind == KindAudDMock || p.kind == KindErrorTester
}

// Recognize identifies the song in an encoded audio blob. a non-nil error
// is a *RecognizeError, or ctx.Err() when ctx ends first.
func (p Provider) Recognize(ctx context.Context, data []byte) (*models.Song, error) {
	switch p.kind {
	case KindAudD:
		return p.audd.Recognize(ctx, data)
	case KindShazam:
		return p.shazam.Recognize(ctx, data)
	case KindAudDMock:
		return p.mock.Recognize(ctx, data)
	case KindErrorTester:
		return p.errorTester.Recognize(ctx, data)
	default:
		return nil, newRecognizeErrorf(OtherPermanent, "unknown provider %d", int(p.kind))
	}
}

// ListenDuration is how long to record before recognizing.
func (p Provider) ListenDuration() time.Duration {
	switch p.kind {
	case KindAudD:
		return p.audd.ListenDuration()
	case KindShazam:
		return p.shazam.ListenDuration()
	case KindAudDMock:
		return p.mock.ListenDuration()
	case KindErrorTester:
		return p.errorTester.ListenDuration()
	default:
		return 0
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
