package provider

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"song-recognition/models"
)

func TestSettingsProvider(t *testing.T) {
	settings := DefaultSettings()
	assert.Equal(t, KindShazam, settings.Provider().Kind())

	settings.Active = KindAudD
	settings.AudDToken = "secret"
	p := settings.Provider()
	assert.Equal(t, KindAudD, p.Kind())
	assert.Equal(t, "secret", p.audd.Token)
	assert.Equal(t, 5*time.Second, p.ListenDuration())
	assert.False(t, p.IsTest())

	settings.Active = KindAudDMock
	settings.TestListenDuration = 3 * time.Millisecond
	p = settings.Provider()
	assert.True(t, p.IsTest())
	assert.Equal(t, 3*time.Millisecond, p.ListenDuration())

	settings.Active = KindErrorTester
	assert.Equal(t, KindErrorTester, settings.Provider().Kind())
}

func TestParseKindAndMode(t *testing.T) {
	for _, k := range []Kind{KindAudD, KindShazam, KindAudDMock, KindErrorTester} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("acrcloud")
	assert.Error(t, err)

	mode, err := ParseTestMode("Error-Only")
	require.NoError(t, err)
	assert.Equal(t, ErrorOnly, mode)
	_, err = ParseTestMode("sometimes")
	assert.Error(t, err)
}

func TestAudDMockModes(t *testing.T) {
	ctx := context.Background()

	valid := NewAudDMock(ValidOnly, 0, 0)
	for i := 0; i < 20; i++ {
		song, err := valid.Recognize(ctx, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, song.Title)
	}

	errorOnly := NewAudDMock(ErrorOnly, 0, 0)
	for i := 0; i < 20; i++ {
		_, err := errorOnly.Recognize(ctx, nil)
		var recognizeErr *RecognizeError
		require.ErrorAs(t, err, &recognizeErr)
	}
	assert.Equal(t, 20, errorOnly.Calls())
}

func TestAudDMockScript(t *testing.T) {
	song := models.NewSong(models.UidFrom("Test", "1"), "t", "a", "b")
	mock := &AudDMock{Script: []MockOutcome{
		{Err: NewRecognizeError(Connection, "")},
		{Song: song},
	}}
	p := NewAudDMockProvider(mock)

	_, err := p.Recognize(context.Background(), nil)
	var recognizeErr *RecognizeError
	require.ErrorAs(t, err, &recognizeErr)
	assert.Equal(t, Connection, recognizeErr.Kind)

	for i := 0; i < 3; i++ {
		got, err := p.Recognize(context.Background(), nil)
		require.NoError(t, err)
		assert.Same(t, song, got)
	}
	assert.Equal(t, 4, mock.Calls())
}

func TestAudDMockHonoursCancellation(t *testing.T) {
	mock := NewAudDMock(ValidOnly, 0, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := mock.Recognize(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestErrorTesterCycles(t *testing.T) {
	p := NewErrorTesterProvider(NewErrorTester(0, 0))

	var kinds []RecognizeErrorKind
	for i := 0; i < 12; i++ {
		_, err := p.Recognize(context.Background(), nil)
		var recognizeErr *RecognizeError
		require.True(t, errors.As(err, &recognizeErr))
		kinds = append(kinds, recognizeErr.Kind)
	}

	cycle := []RecognizeErrorKind{Connection, TokenLimitReached, InvalidToken, Fingerprint, NoMatches, OtherPermanent}
	assert.Equal(t, append(append([]RecognizeErrorKind{}, cycle...), cycle...), kinds)
}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind RecognizeErrorKind
	}{
		{"dns", &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "amp.shazam.com", IsNotFound: true}}, Connection},
		{"timeout", &url.Error{Op: "Post", URL: "https://api.audd.io/", Err: context.DeadlineExceeded}, Connection},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, OtherPermanent},
		{"tls", errors.New("tls: bad certificate"), OtherPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, classifyTransportError(tt.err).Kind)
		})
	}
}
