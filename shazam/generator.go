package shazam

import (
	"context"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// hanning window with the endpoints excluded, i.e. the 2048 inner points of
// a 2050 point window
var hanningWindow = func() [fftSize]float64 {
	var w [fftSize]float64
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i+1)/float64(fftSize+1))
	}
	return w
}()

type generator struct {
	samples      [fftSize]int16
	sampleIndex  int
	reordered    []float64
	coefficients []complex128
	fft          *fourier.FFT

	fftOutputs      [ringLength][]float64
	fftIndex        int
	spreadOutputs   [ringLength][]float64
	spreadIndex     int
	spreadFFTsDone  uint32
	spreadFrequency []float64

	signature Signature
}

func newGenerator(numberSamples int) *generator {
	g := &generator{
		reordered:       make([]float64, fftSize),
		coefficients:    make([]complex128, fftBins),
		fft:             fourier.NewFFT(fftSize),
		spreadFrequency: make([]float64, fftBins),
		signature: Signature{
			SampleRateHz:  SampleRateHz,
			NumberSamples: uint32(numberSamples),
			Peaks:         map[FrequencyBand][]FrequencyPeak{},
		},
	}
	for i := 0; i < ringLength; i++ {
		g.fftOutputs[i] = make([]float64, fftBins)
		g.spreadOutputs[i] = make([]float64, fftBins)
	}
	return g
}

// GenerateSignature extracts spectral peaks from 16 kHz mono samples. a
// trailing partial hop is ignored.
func GenerateSignature(samples []int16) Signature {
	g := newGenerator(len(samples))

	for start := 0; start+hopSize <= len(samples); start += hopSize {
		g.doFFT(samples[start : start+hopSize])
		g.doPeakSpreading()
		g.spreadFFTsDone++

		if g.spreadFFTsDone >= peakLookback {
			g.doPeakRecognition()
		}
	}

	return g.signature
}

// GenerateSignatureAsync runs GenerateSignature on its own goroutine. it
// returns ctx.Err() if ctx is done first.
func GenerateSignatureAsync(ctx context.Context, samples []int16) (Signature, error) {
	done := make(chan Signature, 1)
	go func() {
		done <- GenerateSignature(samples)
	}()

	select {
	case sig := <-done:
		return sig, nil
	case <-ctx.Done():
		return Signature{}, ctx.Err()
	}
}

func (g *generator) doFFT(hop []int16) {
	copy(g.samples[g.sampleIndex:], hop)
	g.sampleIndex = (g.sampleIndex + hopSize) & (fftSize - 1)

	for i, multiplier := range hanningWindow {
		g.reordered[i] = float64(g.samples[(i+g.sampleIndex)&(fftSize-1)]) * multiplier
	}

	g.coefficients = g.fft.Coefficients(g.coefficients, g.reordered)

	out := g.fftOutputs[g.fftIndex]
	for i, c := range g.coefficients {
		re, im := real(c), imag(c)
		out[i] = math.Max((re*re+im*im)/(1<<17), minMagnitude)
	}

	g.fftIndex = (g.fftIndex + 1) & ringMask
}

func (g *generator) doPeakSpreading() {
	latest := g.fftOutputs[(g.fftIndex-1)&ringMask]
	spread := g.spreadOutputs[g.spreadIndex]
	copy(spread, latest)

	for pos := 0; pos <= fftBins-3; pos++ {
		spread[pos] = math.Max(spread[pos], math.Max(spread[pos+1], spread[pos+2]))
	}

	copy(g.spreadFrequency, spread)
	for _, former := range spreadOffsets {
		formerOutput := g.spreadOutputs[(g.spreadIndex-former)&ringMask]
		for pos, v := range g.spreadFrequency {
			if v > formerOutput[pos] {
				formerOutput[pos] = v
			}
		}
	}

	g.spreadIndex = (g.spreadIndex + 1) & ringMask
}

func peakMagnitude(v float64) float64 {
	return math.Max(math.Log(v), minPeakEnergy)*1477.3 + 6144
}

func (g *generator) doPeakRecognition() {
	fft46 := g.fftOutputs[(g.fftIndex-peakLookback)&ringMask]
	spread49 := g.spreadOutputs[(g.spreadIndex-spreadLookbk)&ringMask]

	for bin := 10; bin <= 1014; bin++ {
		if fft46[bin] < minPeakEnergy || fft46[bin] < spread49[bin-1] {
			continue
		}

		maxNeighbor := 0.0
		for _, off := range neighborOffsets {
			maxNeighbor = math.Max(maxNeighbor, spread49[bin+off])
		}
		if fft46[bin] <= maxNeighbor {
			continue
		}

		maxAdjacent := maxNeighbor
		for _, off := range adjacentOffsets {
			other := g.spreadOutputs[(g.spreadIndex+off)&ringMask]
			maxAdjacent = math.Max(maxAdjacent, other[bin-1])
		}
		if fft46[bin] <= maxAdjacent {
			continue
		}

		magnitude := peakMagnitude(fft46[bin])
		before := peakMagnitude(fft46[bin-1])
		after := peakMagnitude(fft46[bin+1])

		variation1 := magnitude*2 - before - after
		if variation1 <= 0 {
			continue
		}
		variation2 := (after - before) * 32 / variation1

		correctedBin := uint16(int32(bin*64) + int32(variation2))
		hz := float64(correctedBin) * (float64(SampleRateHz) / 2 / 1024 / 64)

		band, ok := bandForHz(int(hz))
		if !ok {
			continue
		}

		g.signature.Peaks[band] = append(g.signature.Peaks[band], FrequencyPeak{
			FFTPassNumber: g.spreadFFTsDone - peakLookback,
			Magnitude:     uint16(magnitude),
			CorrectedBin:  correctedBin,
		})
	}
}

// CenterWindow returns at most maxSecs seconds of samples centred on the
// middle of samples.
func CenterWindow(samples []int16, sampleRate, maxSecs int) []int16 {
	middle := len(samples) / 2
	offset := len(samples)
	if limit := maxSecs * sampleRate; offset > limit {
		offset = limit
	}
	offset /= 2
	return samples[middle-offset : middle+offset]
}
