// Package portaudio captures from sound cards and loopback monitors through
// the PortAudio host APIs.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/loqalabs/loqa-caption/internal/audio"
)

// Opener implements audio.Opener over PortAudio input devices.
type Opener struct {
	log *slog.Logger
}

var _ audio.Opener = (*Opener)(nil)

func New(log *slog.Logger) *Opener {
	return &Opener{log: log.With(slog.String("component", "audio.portaudio"))}
}

// Devices lists input-capable devices, loopback monitors first. Index is the
// PortAudio device index.
func (p *Opener) Devices() ([]audio.Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer pa.Terminate()

	infos, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defaultIn, _ := pa.DefaultInputDevice()

	var speakers, microphones []audio.Device
	for idx, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		dev := audio.Device{
			Index:      idx,
			Channels:   info.MaxInputChannels,
			SampleRate: int(info.DefaultSampleRate),
			Loopback:   isLoopback(info.Name),
		}
		if dev.Loopback {
			dev.Name = "[Speaker] " + info.Name
			speakers = append(speakers, dev)
			continue
		}
		dev.Name = "[Microphone] " + info.Name
		if defaultIn != nil && info.Name == defaultIn.Name {
			microphones = append([]audio.Device{dev}, microphones...)
			continue
		}
		microphones = append(microphones, dev)
	}
	return append(speakers, microphones...), nil
}

func isLoopback(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "loopback") || strings.Contains(lower, "monitor of")
}

func (p *Opener) Open(_ context.Context, cfg audio.DeviceConfig) (audio.Source, error) {
	if cfg.Device.Channels <= 0 || cfg.Device.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %q has no input format", audio.ErrDeviceUnavailable, cfg.Device.Name)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	infos, err := pa.Devices()
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if cfg.Device.Index < 0 || cfg.Device.Index >= len(infos) {
		pa.Terminate()
		return nil, fmt.Errorf("%w: index %d", audio.ErrDeviceUnavailable, cfg.Device.Index)
	}
	info := infos[cfg.Device.Index]

	frames := cfg.FramesPerBuffer
	if frames <= 0 {
		frames = 1024
	}
	buffer := make([]int16, frames*cfg.Device.Channels)
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   info,
			Channels: cfg.Device.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.Device.SampleRate),
		FramesPerBuffer: frames,
	}
	stream, err := pa.OpenStream(params, buffer)
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("%w: open %q: %v", audio.ErrDeviceUnavailable, info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("%w: start %q: %v", audio.ErrDeviceUnavailable, info.Name, err)
	}
	p.log.Info("capture stream opened",
		slog.String("device", cfg.Device.Name),
		slog.Int("channels", cfg.Device.Channels),
		slog.Int("sample_rate", cfg.Device.SampleRate),
		slog.Int("frames_per_buffer", frames))

	return &paSource{
		stream:     stream,
		buffer:     buffer,
		channels:   cfg.Device.Channels,
		sampleRate: cfg.Device.SampleRate,
		log:        p.log,
	}, nil
}

type paSource struct {
	stream     *pa.Stream
	buffer     []int16
	channels   int
	sampleRate int
	log        *slog.Logger

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *paSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, audio.ErrClosed
	}
	err := s.stream.Read()
	if err != nil {
		if errors.Is(err, pa.InputOverflowed) {
			// the driver keeps the stream running; the gap is accepted
			return audio.SamplesToBytes(s.buffer), audio.ErrOverflow
		}
		s.mu.Lock()
		closed = s.closed
		s.mu.Unlock()
		if closed {
			return nil, audio.ErrClosed
		}
		return nil, fmt.Errorf("read capture stream: %w", err)
	}
	return audio.SamplesToBytes(s.buffer), nil
}

func (s *paSource) Channels() int   { return s.channels }
func (s *paSource) SampleRate() int { return s.sampleRate }

func (s *paSource) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = errors.Join(s.stream.Stop(), s.stream.Close(), pa.Terminate())
		s.log.Info("capture stream closed")
	})
	return err
}
