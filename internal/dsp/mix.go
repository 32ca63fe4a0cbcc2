package dsp

// Mix combines N PCM buffers into a single mono buffer by elementwise
// arithmetic mean, clipped to the signed 16-bit range.
//
// An empty input yields an empty buffer, not an error. A single buffer is
// returned unchanged. Buffers of unequal length are truncated to the
// shortest common length before mixing; independent per-device resampling
// can legitimately produce lengths that differ by one sample.
func Mix(buffers [][]int16) []int16 {
	if len(buffers) == 0 {
		return []int16{}
	}
	if len(buffers) == 1 {
		return buffers[0]
	}

	minLen := len(buffers[0])
	for _, b := range buffers[1:] {
		if len(b) < minLen {
			minLen = len(b)
		}
	}

	count := int64(len(buffers))
	mixed := make([]int16, minLen)
	for i := range mixed {
		var sum int64
		for _, b := range buffers {
			sum += int64(b[i])
		}
		mixed[i] = clip16(sum / count)
	}
	return mixed
}

// clip16 clamps a value to [-32768, 32767].
func clip16(v int64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
