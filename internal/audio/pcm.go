package audio

import (
	"fmt"
	"time"
)

// Chunk is one buffer of consecutive signed 16-bit PCM samples read in a
// single capture cycle. Chunks are immutable once produced; ownership
// transfers to the consumer when a chunk is yielded.
type Chunk []int16

// Bytes encodes the chunk as little-endian signed 16-bit PCM, the byte
// layout of the produced-data contract.
func (c Chunk) Bytes() []byte {
	return SamplesToBytes(c)
}

// Duration returns the playback duration of the chunk at the given sample
// rate. It returns 0 for a non-positive rate.
func (c Chunk) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c)) * time.Second / time.Duration(sampleRate)
}

// SamplesToBytes converts PCM samples to little-endian 16-bit bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// BytesToSamples converts little-endian 16-bit PCM bytes to samples.
// The data length must be even.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("audio data length must be even (got %d bytes)", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}
