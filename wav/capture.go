package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"song-recognition/logger"
)

const (
	captureSampleRate = 16000
	// 50ms of mono s16 per level update
	levelChunkBytes = captureSampleRate / 20 * 2
	stopTimeout     = 5 * time.Second
)

var ErrNotRecording = errors.New("not recording")

// Recorder captures a pulse device into an Ogg/Opus blob. a second raw PCM
// output feeds the peak level callback while recording.
type Recorder struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	out     bytes.Buffer
	stderr  bytes.Buffer
	levelRd *os.File
	levelWg sync.WaitGroup
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start launches ffmpeg on device. onPeak, if not nil, is called from a
// separate goroutine with levels in [0, 1].
func (r *Recorder) Start(device string, onPeak func(float64)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return fmt.Errorf("recorder already started")
	}

	levelRd, levelWr, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create level pipe: %v", err)
	}

	r.out.Reset()
	r.stderr.Reset()

	cmd := exec.Command(
		FFmpegPath,
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-f", "pulse",
		"-i", device,
		"-ac", "1",
		"-ar", fmt.Sprint(captureSampleRate),
		"-c:a", "libopus",
		"-f", "ogg",
		"pipe:1",
		"-ac", "1",
		"-ar", fmt.Sprint(captureSampleRate),
		"-f", "s16le",
		"pipe:3",
	)
	cmd.Stdout = &r.out
	cmd.Stderr = &r.stderr
	cmd.ExtraFiles = []*os.File{levelWr}

	if err := cmd.Start(); err != nil {
		levelRd.Close()
		levelWr.Close()
		return fmt.Errorf("failed to start capture on %s: %v", device, err)
	}
	// the child holds its own copy
	levelWr.Close()

	r.cmd = cmd
	r.levelRd = levelRd

	r.levelWg.Add(1)
	go func() {
		defer r.levelWg.Done()
		readLevels(levelRd, onPeak)
	}()

	logger.Debug("[capture] started", logger.String("device", device))
	return nil
}

func readLevels(rd io.Reader, onPeak func(float64)) {
	buf := make([]byte, levelChunkBytes)
	for {
		n, err := io.ReadFull(rd, buf)
		if n > 0 && onPeak != nil {
			onPeak(peakLevel(buf[:n-n%2]))
		}
		if err != nil {
			return
		}
	}
}

func peakLevel(raw []byte) float64 {
	var peak int32
	for i := 0; i+1 < len(raw); i += 2 {
		v := int32(int16(binary.LittleEndian.Uint16(raw[i:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / 32768
}

// Stop ends the capture and returns the encoded recording.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return nil, ErrNotRecording
	}
	cmd := r.cmd
	r.cmd = nil

	// SIGINT lets ffmpeg flush the ogg trailer
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		_ = cmd.Process.Kill()
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	var err error
	select {
	case err = <-waitErr:
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		err = <-waitErr
	}

	r.levelWg.Wait()
	r.levelRd.Close()

	data := append([]byte(nil), r.out.Bytes()...)
	if len(data) == 0 {
		return nil, fmt.Errorf("capture produced no audio: %v, output %v", err, r.stderr.String())
	}

	// ffmpeg exits non-zero on SIGINT even after a clean flush
	if err != nil {
		logger.Debug("[capture] ffmpeg exited", logger.ErrorField(err))
	}

	return data, nil
}

// IsRecording reports whether a capture is in progress.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}
