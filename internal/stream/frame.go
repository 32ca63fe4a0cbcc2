package stream

import (
	"github.com/nicolasperez19/passive-sound-localization/internal/audio"
)

// Frame holds the chunks produced by one read cycle, keyed by device index.
// Only devices that successfully produced data in the cycle are present.
// Devices preserves the configured device order, since map iteration order
// would not.
type Frame struct {
	Devices []int
	Chunks  map[int]audio.Chunk
}

// Chunk returns the chunk captured from the given device in this cycle.
func (f Frame) Chunk(device int) (audio.Chunk, bool) {
	c, ok := f.Chunks[device]
	return c, ok
}

// Empty reports whether no device produced data in this cycle. Empty frames
// are never yielded.
func (f Frame) Empty() bool {
	return len(f.Devices) == 0
}
