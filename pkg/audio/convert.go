// Package audio provides PCM sample conversion and WAV file handling for the
// recording pipeline. Samples travel through the pipeline as normalized
// float32 values in [-1, 1]; conversion to and from integer PCM happens only
// at file, capture, and classifier boundaries.
package audio

import (
	"encoding/binary"
	"time"
)

// SamplesFromInts converts integer PCM at the given bit depth to normalized
// float32 samples. A bit depth outside 8..32 falls back to 16. Channel layout
// is preserved; use [DownmixMono] afterwards for multi-channel input.
func SamplesFromInts(data []int, bitDepth int) []float32 {
	if bitDepth < 8 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out
}

// IntsFromSamples converts normalized float32 samples to 16-bit integer PCM,
// clamping values outside [-1, 1] to the int16 range.
func IntsFromSamples(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(clamp16(s))
	}
	return out
}

// BytesFromSamples converts normalized float32 samples to little-endian
// 16-bit PCM bytes, the wire form expected by the narrowband classifier and
// the WAV chunk encoder.
func BytesFromSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(s)))
	}
	return out
}

func clamp16(s float32) int16 {
	v := int32(s * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// DownmixMono averages interleaved multi-channel samples into mono. A channel
// count below 2 returns the input unchanged. Trailing samples that do not
// form a complete frame are discarded.
func DownmixMono(data []float32, channels int) []float32 {
	if channels < 2 {
		return data
	}
	frames := len(data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += data[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// ResampleMono resamples mono float32 samples from srcRate to dstRate using
// linear interpolation. If the rates match or either rate is invalid, the
// input is returned unchanged.
func ResampleMono(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Duration returns the wall-clock duration of n mono samples at the given
// sample rate.
func Duration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// SampleCount returns the number of mono samples covering d at the given
// sample rate.
func SampleCount(d time.Duration, sampleRate int) int {
	if sampleRate <= 0 || d <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}
