package device

import "errors"

var (
	// ErrInvalidDevice indicates that a configured device index does not
	// resolve to a real input device.
	ErrInvalidDevice = errors.New("no such input device")

	// ErrOverflow indicates the driver dropped samples because the input
	// buffer overflowed. It is a recoverable condition: the read still
	// returns whatever data was available.
	ErrOverflow = errors.New("input buffer overflowed")

	// ErrReadTimeout indicates a timed read gave up before the driver
	// delivered a full chunk.
	ErrReadTimeout = errors.New("read timed out")

	// ErrSessionClosed indicates a read on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Info describes an audio device as reported by the host API.
type Info struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate int
}

// Host is the external audio device API. The production implementation is
// PortAudioHost; tests substitute fakes.
type Host interface {
	// Devices enumerates all devices known to the host.
	Devices() ([]Info, error)

	// DeviceInfo resolves a device index. It returns ErrInvalidDevice
	// (possibly wrapped) if the index does not name an input device.
	DeviceInfo(index int) (Info, error)

	// OpenInput opens an input-only stream on the given device at the
	// given hardware sample rate, reading frames samples per call.
	OpenInput(index, channels, frames, sampleRate int) (Stream, error)

	// Close releases the host API. Streams must be closed first.
	Close() error
}

// Stream is one open hardware input stream.
type Stream interface {
	// Read blocks until one buffer of frames is available. On overflow it
	// returns the available data together with ErrOverflow.
	Read() ([]int16, error)

	// Close stops and releases the stream. It must be idempotent.
	Close() error
}
