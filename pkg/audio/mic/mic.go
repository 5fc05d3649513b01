// Package mic captures mono float32 audio from a system input device through
// PortAudio.
//
// Blocks are delivered to a callback registered at open time. The slice
// passed to the callback is owned by PortAudio and is only valid for the
// duration of the call; consumers that keep audio must copy it.
package mic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Config selects the capture device and block geometry.
type Config struct {
	// SampleRate in Hz.
	SampleRate int

	// BlockMs is the duration of each callback block in milliseconds.
	BlockMs int

	// Device selects an input device by case-insensitive substring match
	// on its name. Empty selects the system default input.
	Device string
}

// Stream is an open capture stream. Not safe for concurrent use; callers
// drive Start/Stop/Close from one goroutine.
type Stream struct {
	stream  *portaudio.Stream
	started bool
}

// Open initializes PortAudio, resolves the input device and opens a mono
// capture stream that delivers blocks to onBlock. The stream does not run
// until [Stream.Start] is called.
func Open(cfg Config, onBlock func(block []float32)) (*Stream, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("mic: sample rate must be positive")
	}
	if cfg.BlockMs <= 0 {
		return nil, errors.New("mic: block duration must be positive")
	}
	if onBlock == nil {
		return nil, errors.New("mic: nil block callback")
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialize portaudio: %w", err)
	}

	dev, err := findInputDevice(cfg.Device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.SampleRate * cfg.BlockMs / 1000

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		onBlock(in)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("mic: open stream on %q: %w", dev.Name, err)
	}
	return &Stream{stream: stream}, nil
}

// Start begins capture. Blocks flow to the callback until [Stream.Stop].
func (s *Stream) Start() error {
	if s.started {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("mic: start stream: %w", err)
	}
	s.started = true
	return nil
}

// Stop halts capture without releasing the stream. A stopped stream can be
// started again.
func (s *Stream) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("mic: stop stream: %w", err)
	}
	return nil
}

// Close stops capture if needed, releases the stream and tears down
// PortAudio.
func (s *Stream) Close() error {
	var errs []error
	if s.started {
		errs = append(errs, s.Stop())
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mic: close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("mic: terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}

// ListDevices returns the names of all input-capable devices, in PortAudio
// enumeration order. It manages its own PortAudio lifetime and may be called
// without an open stream.
func ListDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("mic: enumerate devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// findInputDevice resolves name to an input-capable device. Empty name means
// the system default input.
func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("mic: default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("mic: enumerate devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("mic: no input device matching %q", name)
}
