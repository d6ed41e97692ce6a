package wav

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type AudioSource int

const (
	Microphone AudioSource = iota
	DesktopAudio
)

func (s AudioSource) String() string {
	switch s {
	case DesktopAudio:
		return "desktop-audio"
	default:
		return "microphone"
	}
}

// ParseAudioSource maps a config value to a source, defaulting to the
// microphone.
func ParseAudioSource(s string) AudioSource {
	if strings.EqualFold(strings.TrimSpace(s), "desktop-audio") {
		return DesktopAudio
	}
	return Microphone
}

// PactlPath is the binary queried for default devices.
var PactlPath = "pactl"

// DefaultDeviceName returns the pulse device name to capture from. desktop
// audio is captured from the monitor of the default sink.
func DefaultDeviceName(ctx context.Context, source AudioSource) (string, error) {
	query := "get-default-source"
	if source == DesktopAudio {
		query = "get-default-sink"
	}

	out, err := exec.CommandContext(ctx, PactlPath, query).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to query default %s device: %v", source, err)
	}

	name := strings.TrimSpace(string(out))
	if name == "" {
		return "", fmt.Errorf("no default %s device", source)
	}

	if source == DesktopAudio {
		name += ".monitor"
	}
	return name, nil
}
