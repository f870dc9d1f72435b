package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVFile replays a 16-bit PCM WAV file as if it were a capture device.
type WAVFile struct {
	path     string
	realtime bool
	log      *slog.Logger
}

func NewWAVFile(path string, realtime bool, log *slog.Logger) *WAVFile {
	return &WAVFile{path: path, realtime: realtime, log: log.With(slog.String("component", "audio.wav"))}
}

func (w *WAVFile) Devices() ([]Device, error) {
	file, dec, err := w.openDecoder()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return []Device{{
		Name:       "[File] " + filepath.Base(w.path),
		Index:      0,
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
	}}, nil
}

func (w *WAVFile) openDecoder() (*os.File, *wav.Decoder, error) {
	file, err := os.Open(w.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a valid wav file", ErrDeviceUnavailable, w.path)
	}
	if dec.BitDepth != 16 {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s has %d-bit samples, want 16", ErrDeviceUnavailable, w.path, dec.BitDepth)
	}
	return file, dec, nil
}

// Open ignores the device selection; the file header decides the format.
func (w *WAVFile) Open(_ context.Context, cfg DeviceConfig) (Source, error) {
	file, dec, err := w.openDecoder()
	if err != nil {
		return nil, err
	}
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek pcm chunk: %w", err)
	}
	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	channels := int(dec.NumChans)
	rate := int(dec.SampleRate)
	w.log.Info("wav source opened", slog.String("path", w.path), slog.Int("channels", channels), slog.Int("sample_rate", rate))
	return &wavSource{
		file:     file,
		dec:      dec,
		channels: channels,
		rate:     rate,
		realtime: w.realtime,
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
			Data:   make([]int, frames*channels),
		},
		frameDur: time.Duration(frames) * time.Second / time.Duration(rate),
	}, nil
}

type wavSource struct {
	file     *os.File
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	realtime bool
	frameDur time.Duration

	mu     sync.Mutex
	closed bool
	next   time.Time
}

func (s *wavSource) ReadFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.realtime {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		if wait := time.Until(s.next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		s.next = s.next.Add(s.frameDur)
	}
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}
	// keep whole frames only
	n -= n % s.channels
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(s.buf.Data[i])
	}
	return SamplesToBytes(samples), nil
}

func (s *wavSource) Channels() int   { return s.channels }
func (s *wavSource) SampleRate() int { return s.rate }

func (s *wavSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
