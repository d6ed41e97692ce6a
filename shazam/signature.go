package shazam

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
)

type FrequencyBand uint32

const (
	Band250To520 FrequencyBand = iota
	Band520To1450
	Band1450To3500
	Band3500To5500
)

// FrequencyPeak is a spectral peak found at a given FFT pass.
type FrequencyPeak struct {
	FFTPassNumber uint32
	Magnitude     uint16
	// CorrectedBin is the interpolated FFT bin scaled by 64.
	CorrectedBin uint16
}

// Signature is the decoded form of an audio fingerprint.
type Signature struct {
	SampleRateHz  uint32
	NumberSamples uint32
	// Peaks per band. each slice must be ordered by FFTPassNumber.
	Peaks map[FrequencyBand][]FrequencyPeak
}

const (
	headerMagic1    = 0xcafe2580
	headerMagic2    = 0x94119c00
	headerSize      = 48
	fixedValue      = (15 << 19) + 0x40000
	peaksMarker     = 0x40000000
	bandTagBase     = 0x60030040
	passEscape      = 0xff
	maxPassDelta    = 255
	sizeOffset      = 8
	innerSizeOffset = headerSize + 4
	crcOffset       = 4
)

var ErrInvalidSampleRate = errors.New("invalid sample rate")

var sampleRateIDs = map[uint32]uint32{
	8000:  1,
	11025: 2,
	16000: 3,
	32000: 4,
	44100: 5,
	48000: 6,
}

// SampleMs is the duration covered by the signature in milliseconds.
func (s *Signature) SampleMs() uint32 {
	if s.SampleRateHz == 0 {
		return 0
	}
	return uint32(float32(s.NumberSamples) / float32(s.SampleRateHz) * 1000)
}

// Encode serializes the signature into the little-endian binary format
// understood by the recognition service.
func (s *Signature) Encode() ([]byte, error) {
	rateID, ok := sampleRateIDs[s.SampleRateHz]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, s.SampleRateHz)
	}

	buf := &bytes.Buffer{}
	put := func(v uint32) {
		_ = binary.Write(buf, binary.LittleEndian, v)
	}

	put(headerMagic1)
	put(0) // crc32, patched below
	put(0) // size minus header, patched below
	put(headerMagic2)
	put(0)
	put(0)
	put(0)
	put(rateID << 27)
	put(0)
	put(0)
	put(s.NumberSamples + uint32(float32(s.SampleRateHz)*0.24))
	put(fixedValue)

	put(peaksMarker)
	put(0) // size minus header, patched below

	bands := make([]FrequencyBand, 0, len(s.Peaks))
	for band := range s.Peaks {
		bands = append(bands, band)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i] < bands[j] })

	for _, band := range bands {
		peaks, err := encodePeaks(s.Peaks[band])
		if err != nil {
			return nil, fmt.Errorf("band %d: %w", band, err)
		}

		put(bandTagBase + uint32(band))
		put(uint32(len(peaks)))
		buf.Write(peaks)
		for i := 0; i < (4-len(peaks)%4)%4; i++ {
			buf.WriteByte(0)
		}
	}

	out := buf.Bytes()
	size := uint32(len(out) - headerSize)
	binary.LittleEndian.PutUint32(out[sizeOffset:], size)
	binary.LittleEndian.PutUint32(out[innerSizeOffset:], size)
	binary.LittleEndian.PutUint32(out[crcOffset:], crc32.ChecksumIEEE(out[8:]))

	return out, nil
}

func encodePeaks(peaks []FrequencyPeak) ([]byte, error) {
	buf := &bytes.Buffer{}
	var pass uint32

	for _, peak := range peaks {
		if peak.FFTPassNumber < pass {
			return nil, fmt.Errorf("peaks out of order: pass %d after %d", peak.FFTPassNumber, pass)
		}

		if peak.FFTPassNumber-pass >= maxPassDelta {
			buf.WriteByte(passEscape)
			_ = binary.Write(buf, binary.LittleEndian, peak.FFTPassNumber)
			pass = peak.FFTPassNumber
		}

		buf.WriteByte(byte(peak.FFTPassNumber - pass))
		_ = binary.Write(buf, binary.LittleEndian, peak.Magnitude)
		_ = binary.Write(buf, binary.LittleEndian, peak.CorrectedBin)

		pass = peak.FFTPassNumber
	}

	return buf.Bytes(), nil
}

// EncodeToURI wraps the binary encoding in a base64 data URI.
func (s *Signature) EncodeToURI() (string, error) {
	data, err := s.Encode()
	if err != nil {
		return "", err
	}
	return "data:audio/vnd.shazam.sig;base64," + base64.StdEncoding.EncodeToString(data), nil
}
