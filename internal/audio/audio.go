// Package audio captures 16-bit PCM from capture devices and files.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOverflow reports dropped input; callers keep reading.
	ErrOverflow = errors.New("audio input overflowed")
	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("audio source closed")
	// ErrDeviceUnavailable reports a device that cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// Device describes a capture endpoint.
type Device struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"rate"`
	Loopback   bool   `json:"loopback"`
}

// DeviceConfig selects a device and the read granularity.
type DeviceConfig struct {
	Device          Device
	FramesPerBuffer int
}

// Source yields interleaved int16 little-endian PCM frames.
type Source interface {
	// ReadFrame blocks until a buffer is available or the driver times out.
	ReadFrame(ctx context.Context) ([]byte, error)
	Channels() int
	SampleRate() int
	// Close is safe to call more than once.
	Close() error
}

// Opener enumerates devices and opens capture streams.
type Opener interface {
	Devices() ([]Device, error)
	Open(ctx context.Context, cfg DeviceConfig) (Source, error)
}

// Downmix averages the channels of each interleaved frame into one mono
// sample using integer division.
func Downmix(frame []byte, channels int) ([]byte, error) {
	if channels <= 1 {
		return frame, nil
	}
	stride := 2 * channels
	if len(frame)%stride != 0 {
		return nil, fmt.Errorf("pcm frame of %d bytes not aligned to %d channels", len(frame), channels)
	}
	frames := len(frame) / stride
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int32
		base := i * stride
		for c := 0; c < channels; c++ {
			sum += int32(int16(binary.LittleEndian.Uint16(frame[base+c*2:])))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(floorDiv(sum, int32(channels)))))
	}
	return out, nil
}

// floorDiv rounds toward negative infinity so negative samples average the
// same way positive ones do.
func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// SamplesToBytes encodes int16 samples as little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes little-endian bytes into int16 samples.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
