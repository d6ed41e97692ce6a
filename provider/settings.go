package provider

import "time"

// Settings selects and configures the active provider. it is a plain value
// handed to the recognizer whenever it changes.
type Settings struct {
	Active                Kind
	AudDToken             string
	TestMode              TestMode
	TestListenDuration    time.Duration
	TestRecognizeDuration time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Active:                KindShazam,
		TestMode:              ValidOnly,
		TestListenDuration:    time.Second,
		TestRecognizeDuration: time.Second,
	}
}

// Provider builds the provider selected by s.
func (s Settings) Provider() Provider {
	switch s.Active {
	case KindAudD:
		return NewAudDProvider(NewAudD(s.AudDToken))
	case KindAudDMock:
		return NewAudDMockProvider(NewAudDMock(s.TestMode, s.TestListenDuration, s.TestRecognizeDuration))
	case KindErrorTester:
		return NewErrorTesterProvider(NewErrorTester(s.TestListenDuration, s.TestRecognizeDuration))
	default:
		return NewShazamProvider(NewShazam())
	}
}
