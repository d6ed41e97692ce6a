package provider

import (
	"fmt"
	"strings"
)

type RecognizeErrorKind int

const (
	NoMatches RecognizeErrorKind = iota
	Fingerprint
	InvalidToken
	TokenLimitReached
	Connection
	OtherPermanent
)

var errorKindNames = map[RecognizeErrorKind]string{
	NoMatches:         "no-matches",
	Fingerprint:       "fingerprint",
	InvalidToken:      "invalid-token",
	TokenLimitReached: "token-limit-reached",
	Connection:        "connection",
	OtherPermanent:    "other-permanent",
}

// AllErrorKinds lists every kind in declaration order.
func AllErrorKinds() []RecognizeErrorKind {
	return []RecognizeErrorKind{NoMatches, Fingerprint, InvalidToken, TokenLimitReached, Connection, OtherPermanent}
}

func (k RecognizeErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// IsPermanent reports whether retrying with the same input and configuration
// cannot succeed. every retry decision goes through here.
func (k RecognizeErrorKind) IsPermanent() bool {
	switch k {
	case NoMatches, Fingerprint, OtherPermanent:
		return true
	case Connection, TokenLimitReached, InvalidToken:
		return false
	default:
		return true
	}
}

func (k RecognizeErrorKind) MarshalText() ([]byte, error) {
	name, ok := errorKindNames[k]
	if !ok {
		return nil, fmt.Errorf("invalid recognize error kind %d", int(k))
	}
	return []byte(name), nil
}

func (k *RecognizeErrorKind) UnmarshalText(text []byte) error {
	for kind, name := range errorKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("invalid recognize error kind %q", text)
}

// RecognizeError is the outcome of a failed recognition attempt.
type RecognizeError struct {
	Kind    RecognizeErrorKind `json:"kind"`
	Message string             `json:"message,omitempty"`
}

func NewRecognizeError(kind RecognizeErrorKind, message string) *RecognizeError {
	return &RecognizeError{Kind: kind, Message: message}
}

func newRecognizeErrorf(kind RecognizeErrorKind, format string, args ...any) *RecognizeError {
	return &RecognizeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *RecognizeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Title())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *RecognizeError) IsPermanent() bool {
	return e.Kind.IsPermanent()
}

// Title is a short user facing summary of the kind.
func (e *RecognizeError) Title() string {
	switch e.Kind {
	case NoMatches:
		return "No Matches Found"
	case Fingerprint:
		return "Can't Create Audio Fingerprint"
	case InvalidToken:
		return "Invalid Token Given"
	case TokenLimitReached:
		return "Token Limit Reached"
	case Connection:
		return "Can't Connect to the Server"
	default:
		return "Something Went Wrong"
	}
}

// Description suggests what the user can do about it.
func (e *RecognizeError) Description() string {
	switch e.Kind {
	case NoMatches:
		return "Try moving closer to the source, or recognize again later."
	case Fingerprint:
		return "There may be no sound heard. Try recognizing again."
	case InvalidToken:
		return "Check the API token in the settings."
	case TokenLimitReached:
		return "Use a different token or try again later."
	case Connection:
		return "The recording will be recognized once back online."
	default:
		return "Please report this if it keeps happening."
	}
}
