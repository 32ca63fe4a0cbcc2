package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioHost implements Host on top of the PortAudio library.
// A host owns the library initialization; exactly one streaming coordinator
// should own a given host at a time.
type PortAudioHost struct {
	mu     sync.Mutex
	closed bool
}

// NewPortAudioHost initializes PortAudio and returns a host handle.
func NewPortAudioHost() (*PortAudioHost, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return &PortAudioHost{}, nil
}

// Devices enumerates all devices known to PortAudio.
func (h *PortAudioHost) Devices() ([]Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	infos := make([]Info, len(devices))
	for i, d := range devices {
		infos[i] = Info{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: int(d.DefaultSampleRate),
		}
	}
	return infos, nil
}

// DeviceInfo resolves a device index to an input device description.
func (h *PortAudioHost) DeviceInfo(index int) (Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return Info{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if index < 0 || index >= len(devices) {
		return Info{}, fmt.Errorf("index %d out of range (%d devices): %w", index, len(devices), ErrInvalidDevice)
	}
	if devices[index].MaxInputChannels < 1 {
		return Info{}, fmt.Errorf("device %d (%s) has no input channels: %w", index, devices[index].Name, ErrInvalidDevice)
	}

	return Info{
		Index:             index,
		Name:              devices[index].Name,
		MaxInputChannels:  devices[index].MaxInputChannels,
		DefaultSampleRate: int(devices[index].DefaultSampleRate),
	}, nil
}

// OpenInput opens an input-only stream on the given device. The stream is
// opened at the requested hardware rate; callers pass the device's native
// rate and resample in software afterward.
func (h *PortAudioHost) OpenInput(index, channels, frames, sampleRate int) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("index %d out of range (%d devices): %w", index, len(devices), ErrInvalidDevice)
	}

	buffer := make([]int16, frames*channels)

	params := portaudio.LowLatencyParameters(devices[index], nil)
	params.Input.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frames

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream on device %d: %w", index, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream on device %d: %w", index, err)
	}

	return &paStream{stream: stream, buffer: buffer}, nil
}

// Close terminates the PortAudio library. Safe to call more than once.
func (h *PortAudioHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return portaudio.Terminate()
}

// paStream adapts *portaudio.Stream to the Stream interface.
type paStream struct {
	stream *portaudio.Stream
	buffer []int16

	mu     sync.Mutex
	closed bool
}

// Read blocks until the driver fills one buffer. Driver overflow is mapped
// to ErrOverflow with the partial data still returned; it is never fatal.
func (s *paStream) Read() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	err := s.stream.Read()

	// Ownership of the chunk transfers to the caller, so copy out of the
	// driver buffer before the next read overwrites it.
	out := make([]int16, len(s.buffer))
	copy(out, s.buffer)

	if err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return out, ErrOverflow
		}
		return nil, err
	}
	return out, nil
}

// Close stops and releases the stream. Idempotent.
func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.stream.Stop()
	return s.stream.Close()
}
