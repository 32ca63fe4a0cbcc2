package device

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeStream scripts the behavior of a hardware input stream.
type fakeStream struct {
	chunk     []int16
	readErr   error
	overflow  bool
	readDelay time.Duration

	reads      int
	closeCalls int
}

func (f *fakeStream) Read() ([]int16, error) {
	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]int16, len(f.chunk))
	copy(out, f.chunk)
	if len(out) > 0 {
		out[0] = int16(f.reads) // distinguish successive reads
	}
	if f.overflow {
		return out[:len(out)/2], ErrOverflow
	}
	return out, nil
}

func (f *fakeStream) Close() error {
	f.closeCalls++
	return nil
}

// fakeHost serves a fixed device table.
type fakeHost struct {
	infos   map[int]Info
	streams map[int]*fakeStream
	openErr error
	closed  bool
}

func (f *fakeHost) Devices() ([]Info, error) {
	infos := make([]Info, 0, len(f.infos))
	for _, info := range f.infos {
		infos = append(infos, info)
	}
	return infos, nil
}

func (f *fakeHost) DeviceInfo(index int) (Info, error) {
	info, ok := f.infos[index]
	if !ok {
		return Info{}, ErrInvalidDevice
	}
	return info, nil
}

func (f *fakeHost) OpenInput(index, channels, frames, sampleRate int) (Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	stream, ok := f.streams[index]
	if !ok {
		return nil, ErrInvalidDevice
	}
	return stream, nil
}

func (f *fakeHost) Close() error {
	f.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeHost() (*fakeHost, *fakeStream) {
	stream := &fakeStream{chunk: make([]int16, 1024)}
	host := &fakeHost{
		infos: map[int]Info{
			3: {Index: 3, Name: "fake mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
		},
		streams: map[int]*fakeStream{3: stream},
	}
	return host, stream
}

func TestOpenSessionDiscoversNativeRate(t *testing.T) {
	host, _ := newFakeHost()

	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	if session.Device() != 3 {
		t.Errorf("Expected device 3, got %d", session.Device())
	}
	if session.NativeSampleRate() != 48000 {
		t.Errorf("Expected native rate 48000, got %d", session.NativeSampleRate())
	}
	if session.Name() != "fake mic" {
		t.Errorf("Expected name 'fake mic', got %q", session.Name())
	}
}

func TestOpenSessionInvalidDevice(t *testing.T) {
	host, _ := newFakeHost()

	_, err := OpenSession(host, 99, 1, 1024, testLogger(), nil)
	if err == nil {
		t.Fatal("Expected error for invalid device, got nil")
	}
	if !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("Expected ErrInvalidDevice, got %v", err)
	}
}

func TestSessionRead(t *testing.T) {
	host, _ := newFakeHost()
	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	chunk, err := session.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(chunk) != 1024 {
		t.Errorf("Expected 1024 samples, got %d", len(chunk))
	}
}

func TestSessionReadOverflowIsRecoverable(t *testing.T) {
	host, stream := newFakeHost()
	stream.overflow = true

	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	chunk, err := session.Read()
	if err != nil {
		t.Fatalf("Overflow must not be an error, got: %v", err)
	}
	if len(chunk) != 512 {
		t.Errorf("Expected the partial 512 samples, got %d", len(chunk))
	}
}

func TestSessionReadFailure(t *testing.T) {
	host, stream := newFakeHost()
	stream.readErr = errors.New("device unplugged")

	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	if _, err := session.Read(); err == nil {
		t.Error("Expected read error, got nil")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	host, stream := newFakeHost()
	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("Second close must be safe: %v", err)
	}

	if stream.closeCalls != 1 {
		t.Errorf("Expected 1 stream close, got %d", stream.closeCalls)
	}

	if _, err := session.Read(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Expected ErrSessionClosed after close, got %v", err)
	}
}

func TestSessionReadTimeout(t *testing.T) {
	host, stream := newFakeHost()
	stream.readDelay = 50 * time.Millisecond

	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	// First timed read gives up before the driver returns.
	_, err = session.ReadTimeout(5 * time.Millisecond)
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("Expected ErrReadTimeout, got %v", err)
	}

	// While the read is still in flight the session keeps reporting a
	// timeout instead of starting a second driver read.
	_, err = session.ReadTimeout(time.Millisecond)
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("Expected ErrReadTimeout while pending, got %v", err)
	}

	// Once the stale read has completed it is discarded and a fresh read
	// is served.
	time.Sleep(100 * time.Millisecond)
	chunk, err := session.ReadTimeout(time.Second)
	if err != nil {
		t.Fatalf("ReadTimeout failed after stale read completed: %v", err)
	}
	if chunk[0] != 2 {
		t.Errorf("Expected data from the second driver read, got read %d", chunk[0])
	}
}

func TestSessionReadTimeoutFastPath(t *testing.T) {
	host, _ := newFakeHost()
	session, err := OpenSession(host, 3, 1, 1024, testLogger(), nil)
	if err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}
	defer session.Close()

	chunk, err := session.ReadTimeout(time.Second)
	if err != nil {
		t.Fatalf("ReadTimeout failed: %v", err)
	}
	if len(chunk) != 1024 {
		t.Errorf("Expected 1024 samples, got %d", len(chunk))
	}
}
