package wav

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFmpegPath is the binary used for capture and decoding.
var FFmpegPath = "ffmpeg"

// FFprobePath is the binary used to read clip durations.
var FFprobePath = "ffprobe"

// DecodePCM decodes an encoded audio blob of any format ffmpeg understands
// into mono signed 16-bit samples at sampleRate.
func DecodePCM(ctx context.Context, data []byte, sampleRate int) ([]int16, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode audio: empty input")
	}

	cmd := exec.CommandContext(ctx,
		FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to decode audio: %v, output %v", err, strings.TrimSpace(stderr.String()))
	}

	return bytesToSamples(stdout.Bytes()), nil
}

func bytesToSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// ClipDuration asks ffprobe how long an encoded audio blob plays.
func ClipDuration(ctx context.Context, data []byte) (time.Duration, error) {
	cmd := exec.CommandContext(ctx,
		FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", "pipe:0",
	)
	cmd.Stdin = bytes.NewReader(data)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("failed to read duration: %w", err)
	}
	return parseDurationOutput(string(out))
}

// parseDurationOutput reads ffprobe's seconds output. streams without a
// known length report "N/A".
func parseDurationOutput(out string) (time.Duration, error) {
	out = strings.TrimSpace(out)
	if out == "" || out == "N/A" {
		return 0, fmt.Errorf("unknown duration")
	}
	secs, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", out, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
