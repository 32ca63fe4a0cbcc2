package stream

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicolasperez19/passive-sound-localization/internal/audio"
	"github.com/nicolasperez19/passive-sound-localization/internal/device"
	"github.com/nicolasperez19/passive-sound-localization/internal/dsp"
	"github.com/nicolasperez19/passive-sound-localization/internal/metrics"
)

// ErrNotRestartable is returned by Start on a stopped coordinator. A
// coordinator covers exactly one capture session; construct a new one to
// capture again.
var ErrNotRestartable = errors.New("coordinator is stopped and cannot be restarted")

// State is the coordinator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateStopped
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config holds the immutable capture parameters of one coordinator.
type Config struct {
	// TargetSampleRate is the common rate all device streams are
	// converted to before emission, in Hz.
	TargetSampleRate int

	// Channels is the channel count requested per device, normally 1.
	Channels int

	// ChunkSize is the number of frames read per device per cycle.
	ChunkSize int

	// DeviceIndices lists the input devices to capture from, in order.
	DeviceIndices []int

	// AllowPartial tolerates devices that fail to open, as long as at
	// least one session opens. When false, any open failure aborts Start.
	AllowPartial bool

	// ConcurrentReads reads all devices concurrently per cycle with a
	// per-device timeout, so one stalled device cannot throttle the whole
	// stream. A device that misses the timeout is omitted from the cycle
	// exactly like a failed one. When false, devices are read
	// sequentially and a cycle lasts as long as its slowest read.
	ConcurrentReads bool

	// ReadTimeout bounds each device read when ConcurrentReads is set.
	ReadTimeout time.Duration
}

func (c Config) validate() error {
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive, got %d", c.TargetSampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if len(c.DeviceIndices) == 0 {
		return errors.New("device indices cannot be empty")
	}
	if c.ConcurrentReads && c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive when concurrent reads are enabled")
	}
	return nil
}

// Coordinator orchestrates a set of device sessions as one logical
// multi-device stream. Its lifecycle is Idle -> Streaming -> Stopped;
// Stopped is terminal. The coordinator exclusively owns the host handle
// and every session it opens.
type Coordinator struct {
	cfg     Config
	host    device.Host
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    State
	sessions []*device.Session

	// originalSampleRate records the first session's native rate; kept
	// for status reporting. Each session tracks its own native rate,
	// since devices may differ.
	originalSampleRate int

	startTime time.Time

	cycles      atomic.Uint64
	emptyCycles atomic.Uint64
	frames      atomic.Uint64
	mixedChunks atomic.Uint64
}

// readResult is the outcome of one device read within a cycle. The cycle
// loop folds over these values; errors never escape it.
type readResult struct {
	device int
	chunk  audio.Chunk
	err    error
}

// NewCoordinator validates the configuration and returns an idle
// coordinator. The coordinator takes ownership of host: Stop releases it.
// m may be nil to disable instrumentation.
func NewCoordinator(cfg Config, host device.Host, logger *slog.Logger, m *metrics.Metrics) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}

	return &Coordinator{
		cfg:     cfg,
		host:    host,
		logger:  logger,
		metrics: m,
		state:   StateIdle,
	}, nil
}

// Start opens one device session per configured index, in order, and
// transitions to Streaming. Without AllowPartial any open failure closes
// the already-opened sessions and aborts; with it, open failures are
// logged and skipped, but zero opened sessions still aborts. A stopped
// coordinator cannot be started again.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateStreaming:
		return errors.New("coordinator already streaming")
	case StateStopped:
		return ErrNotRestartable
	}

	var sessions []*device.Session
	for _, index := range c.cfg.DeviceIndices {
		s, err := device.OpenSession(c.host, index, c.cfg.Channels, c.cfg.ChunkSize, c.logger, c.metrics)
		if err != nil {
			if c.cfg.AllowPartial {
				c.logger.Warn("Skipping device that failed to open",
					slog.Int("device", index),
					slog.String("error", err.Error()),
				)
				continue
			}
			c.closeSessions(sessions)
			return fmt.Errorf("failed to open device %d: %w", index, err)
		}
		sessions = append(sessions, s)
	}

	if len(sessions) == 0 {
		return errors.New("no configured device could be opened")
	}

	c.sessions = sessions
	c.originalSampleRate = sessions[0].NativeSampleRate()
	c.state = StateStreaming
	c.startTime = time.Now()

	if c.metrics != nil {
		c.metrics.SessionsOpen.Set(float64(len(sessions)))
	}

	c.logger.Info("Coordinator streaming",
		slog.Int("sessions", len(sessions)),
		slog.Int("target_sample_rate", c.cfg.TargetSampleRate),
		slog.Int("chunk_size", c.cfg.ChunkSize),
		slog.Bool("concurrent_reads", c.cfg.ConcurrentReads),
	)
	return nil
}

// Stop transitions to Stopped: the streaming state is cleared first so
// in-flight read cycles observe it and terminate, then every session is
// closed, then the host handle is released. Teardown is best-effort and
// total; close errors are logged, never escalated, and never short-circuit
// the remaining teardown steps. Stop is idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	sessions := c.sessions
	c.sessions = nil
	c.mu.Unlock()

	c.closeSessions(sessions)

	if err := c.host.Close(); err != nil {
		c.logger.Warn("Error releasing device host", slog.String("error", err.Error()))
	}

	if c.metrics != nil {
		c.metrics.SessionsOpen.Set(0)
	}

	c.logger.Info("Coordinator stopped",
		slog.Uint64("cycles", c.cycles.Load()),
		slog.Uint64("empty_cycles", c.emptyCycles.Load()),
		slog.Uint64("frames_yielded", c.frames.Load()),
		slog.Uint64("mixed_chunks_yielded", c.mixedChunks.Load()),
	)
}

// closeSessions closes every session, never stopping at the first failure.
func (c *Coordinator) closeSessions(sessions []*device.Session) {
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			c.logger.Warn("Error closing device session",
				slog.Int("device", s.Device()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frames returns the lazy multi-channel sequence. Each pull runs one read
// cycle across all sessions in configured order: devices that fail are
// logged and omitted from that cycle only, and a cycle in which every
// device failed yields nothing and the loop immediately retries (device
// reads block, so the loop is inherently rate-limited). The sequence is
// infinite while streaming and exhausts the moment the coordinator stops.
func (c *Coordinator) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for c.State() == StateStreaming {
			frame := Frame{Chunks: make(map[int]audio.Chunk)}
			for _, r := range c.readCycle() {
				if r.err != nil {
					c.reportReadError(r)
					continue
				}
				frame.Devices = append(frame.Devices, r.device)
				frame.Chunks[r.device] = r.chunk
			}

			if frame.Empty() {
				c.emptyCycles.Add(1)
				if c.metrics != nil {
					c.metrics.EmptyCycles.Inc()
				}
				continue
			}

			c.frames.Add(1)
			if c.metrics != nil {
				c.metrics.FramesYielded.Inc()
			}
			if !yield(frame) {
				return
			}
		}
	}
}

// Mixed returns the lazy mixed-down sequence. Per-cycle semantics match
// Frames, but the successfully-read chunks are combined into one averaged
// mono chunk; a chunk is yielded only when at least one device produced
// data in the cycle.
func (c *Coordinator) Mixed() iter.Seq[audio.Chunk] {
	return func(yield func(audio.Chunk) bool) {
		for c.State() == StateStreaming {
			var buffers [][]int16
			for _, r := range c.readCycle() {
				if r.err != nil {
					c.reportReadError(r)
					continue
				}
				buffers = append(buffers, r.chunk)
			}

			if len(buffers) == 0 {
				c.emptyCycles.Add(1)
				if c.metrics != nil {
					c.metrics.EmptyCycles.Inc()
				}
				continue
			}

			c.mixedChunks.Add(1)
			if c.metrics != nil {
				c.metrics.MixedChunksYielded.Inc()
			}
			if !yield(audio.Chunk(dsp.Mix(buffers))) {
				return
			}
		}
	}
}

// readCycle performs one read across all sessions and resamples each
// successful chunk to the target rate. Results preserve configured device
// order regardless of the read policy.
func (c *Coordinator) readCycle() []readResult {
	c.mu.Lock()
	sessions := c.sessions
	c.mu.Unlock()

	start := time.Now()
	results := make([]readResult, len(sessions))

	if c.cfg.ConcurrentReads {
		var g errgroup.Group
		for i, s := range sessions {
			g.Go(func() error {
				results[i] = c.readOne(s)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, s := range sessions {
			results[i] = c.readOne(s)
		}
	}

	c.cycles.Add(1)
	if c.metrics != nil {
		c.metrics.ReadCycles.Inc()
		c.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	return results
}

// readOne reads one chunk from a session and resamples it from the
// session's native rate to the target rate.
func (c *Coordinator) readOne(s *device.Session) readResult {
	var chunk audio.Chunk
	var err error
	if c.cfg.ConcurrentReads {
		chunk, err = s.ReadTimeout(c.cfg.ReadTimeout)
	} else {
		chunk, err = s.Read()
	}
	if err != nil {
		return readResult{device: s.Device(), err: err}
	}

	resampled, err := dsp.Resample(chunk, s.NativeSampleRate(), c.cfg.TargetSampleRate)
	if err != nil {
		return readResult{device: s.Device(), err: fmt.Errorf("resample: %w", err)}
	}
	return readResult{device: s.Device(), chunk: resampled}
}

// reportReadError logs a per-device cycle failure and counts it. The
// device is omitted from the current cycle only; the stream keeps running
// with degraded coverage.
func (c *Coordinator) reportReadError(r readResult) {
	c.logger.Error("Device read failed, omitting from cycle",
		slog.Int("device", r.device),
		slog.String("error", r.err.Error()),
	)
	if c.metrics == nil {
		return
	}
	if errors.Is(r.err, device.ErrReadTimeout) {
		c.metrics.ReadTimeouts.WithLabelValues(strconv.Itoa(r.device)).Inc()
		return
	}
	c.metrics.ReadErrors.WithLabelValues(strconv.Itoa(r.device)).Inc()
}

// DeviceStatus describes one open session for monitoring.
type DeviceStatus struct {
	Device           int    `json:"device"`
	Name             string `json:"name"`
	NativeSampleRate int    `json:"native_sample_rate"`
}

// Status is a monitoring snapshot of the coordinator.
type Status struct {
	State              string         `json:"state"`
	TargetSampleRate   int            `json:"target_sample_rate"`
	OriginalSampleRate int            `json:"original_sample_rate"`
	ChunkSize          int            `json:"chunk_size"`
	ConcurrentReads    bool           `json:"concurrent_reads"`
	Devices            []DeviceStatus `json:"devices"`
	Cycles             uint64         `json:"cycles"`
	EmptyCycles        uint64         `json:"empty_cycles"`
	FramesYielded      uint64         `json:"frames_yielded"`
	MixedChunksYielded uint64         `json:"mixed_chunks_yielded"`
	Uptime             float64        `json:"uptime_seconds"`
}

// Status returns a snapshot of the coordinator for monitoring APIs.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]DeviceStatus, 0, len(c.sessions))
	for _, s := range c.sessions {
		devices = append(devices, DeviceStatus{
			Device:           s.Device(),
			Name:             s.Name(),
			NativeSampleRate: s.NativeSampleRate(),
		})
	}

	var uptime float64
	if !c.startTime.IsZero() {
		uptime = time.Since(c.startTime).Seconds()
	}

	return Status{
		State:              c.state.String(),
		TargetSampleRate:   c.cfg.TargetSampleRate,
		OriginalSampleRate: c.originalSampleRate,
		ChunkSize:          c.cfg.ChunkSize,
		ConcurrentReads:    c.cfg.ConcurrentReads,
		Devices:            devices,
		Cycles:             c.cycles.Load(),
		EmptyCycles:        c.emptyCycles.Load(),
		FramesYielded:      c.frames.Load(),
		MixedChunksYielded: c.mixedChunks.Load(),
		Uptime:             uptime,
	}
}
