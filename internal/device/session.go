package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicolasperez19/passive-sound-localization/internal/audio"
	"github.com/nicolasperez19/passive-sound-localization/internal/metrics"
)

// Session owns one hardware input stream across its lifecycle: it resolves
// the device's native sample rate at open time, reads fixed-size chunks,
// and releases the stream on close. Failures of one session never affect
// another; the caller isolates read errors per cycle.
type Session struct {
	device     int
	name       string
	nativeRate int
	chunkSize  int
	stream     Stream
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// pending holds the result channel of a timed-out read still in
	// flight. Only one read is ever in flight per session.
	pending chan readOutcome

	mu     sync.Mutex
	closed bool
}

type readOutcome struct {
	chunk audio.Chunk
	err   error
}

// OpenSession resolves the device's native sample rate and opens an
// input-only hardware stream at that rate; resampling to the target rate
// happens in software afterward, never by requesting a non-native hardware
// rate. It fails with a wrapped ErrInvalidDevice when the index does not
// name an input device. m may be nil.
func OpenSession(host Host, index, channels, chunkSize int, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	info, err := host.DeviceInfo(index)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", index, err)
	}

	stream, err := host.OpenInput(index, channels, chunkSize, info.DefaultSampleRate)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", index, err)
	}

	logger.Info("Device session opened",
		slog.Int("device", index),
		slog.String("name", info.Name),
		slog.Int("native_sample_rate", info.DefaultSampleRate),
		slog.Int("channels", channels),
		slog.Int("chunk_size", chunkSize),
	)

	return &Session{
		device:     index,
		name:       info.Name,
		nativeRate: info.DefaultSampleRate,
		chunkSize:  chunkSize,
		stream:     stream,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Device returns the configured device index.
func (s *Session) Device() int { return s.device }

// Name returns the device name reported by the host API.
func (s *Session) Name() string { return s.name }

// NativeSampleRate returns the hardware rate discovered at open time.
func (s *Session) NativeSampleRate() int { return s.nativeRate }

// Read blocks until one chunk of frames is available. Driver overflow is
// logged as a warning and the partial data is returned; only unrecoverable
// I/O failures are surfaced as errors.
func (s *Session) Read() (audio.Chunk, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("device %d: %w", s.device, ErrSessionClosed)
	}

	data, err := s.stream.Read()
	if err != nil {
		if errors.Is(err, ErrOverflow) {
			s.logger.Warn("Input overflow, continuing with available data",
				slog.Int("device", s.device),
				slog.Int("samples", len(data)),
			)
			if s.metrics != nil {
				s.metrics.ReadOverflows.WithLabelValues(deviceLabel(s.device)).Inc()
			}
			return data, nil
		}
		return nil, fmt.Errorf("device %d: read: %w", s.device, err)
	}
	return data, nil
}

// ReadTimeout performs a timed read for the concurrent read-cycle policy.
// The underlying driver read cannot be cancelled, so a timed-out read stays
// in flight; its stale result is discarded on the next call, and the
// session reports ErrReadTimeout until the driver returns. At most one
// driver read is in flight per session.
func (s *Session) ReadTimeout(timeout time.Duration) (audio.Chunk, error) {
	if s.pending != nil {
		select {
		case <-s.pending:
			// Late result from a previous timed-out read; drop it and
			// read fresh data below.
			s.pending = nil
		default:
			return nil, fmt.Errorf("device %d: previous read still pending: %w", s.device, ErrReadTimeout)
		}
	}

	ch := make(chan readOutcome, 1)
	go func() {
		chunk, err := s.Read()
		ch <- readOutcome{chunk: chunk, err: err}
	}()

	select {
	case out := <-ch:
		return out.chunk, out.err
	case <-time.After(timeout):
		s.pending = ch
		return nil, fmt.Errorf("device %d: %w", s.device, ErrReadTimeout)
	}
}

// Close stops and releases the hardware stream. It is idempotent and safe
// to call on an already-closed session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("device %d: close: %w", s.device, err)
	}

	s.logger.Info("Device session closed", slog.Int("device", s.device))
	return nil
}

// deviceLabel formats a device index as a metric label value.
func deviceLabel(device int) string {
	return fmt.Sprintf("%d", device)
}
