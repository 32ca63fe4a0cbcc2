package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Resample converts a PCM buffer captured at srcRate into one at tgtRate
// using frequency-domain band-limited interpolation: the input is
// transformed to the frequency domain, the spectrum is truncated or
// zero-padded to the output length, and the result is inverse-transformed.
// This preserves signal shape across arbitrary rate ratios without the
// aliasing and pitch artifacts of naive linear interpolation.
//
// When srcRate equals tgtRate the input buffer is returned unchanged
// without copying. Otherwise the output length is
// round(len(buf) * tgtRate / srcRate); consumers must tolerate a jitter of
// one sample against a purely proportional calculation due to rounding.
// Output samples are saturated to the signed 16-bit range, never wrapped.
func Resample(buf []int16, srcRate, tgtRate int) ([]int16, error) {
	if srcRate <= 0 || tgtRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive (got src=%d, tgt=%d)", srcRate, tgtRate)
	}

	if srcRate == tgtRate {
		return buf, nil
	}

	n := len(buf)
	m := int(math.Round(float64(n) * float64(tgtRate) / float64(srcRate)))
	if n == 0 || m == 0 {
		return []int16{}, nil
	}

	in := make([]float64, n)
	for i, s := range buf {
		in[i] = float64(s)
	}

	src := fourier.NewFFT(n).Coefficients(nil, in)

	// Truncate or zero-pad the half spectrum to the output length.
	dst := make([]complex128, m/2+1)
	copy(dst, src)

	// Nyquist-bin handling for even transform lengths: when truncating,
	// the new Nyquist bin absorbs its conjugate mirror; when padding, the
	// old Nyquist bin is split between the positive and negative halves.
	if m < n && m%2 == 0 {
		dst[m/2] = complex(2*real(src[m/2]), 0)
	} else if m > n && n%2 == 0 {
		dst[n/2] = complex(real(src[n/2])/2, 0)
	}

	// The inverse transform is unnormalized; dividing by the input length
	// both normalizes it and applies the m/n amplitude correction.
	out := fourier.NewFFT(m).Sequence(nil, dst)

	scale := 1 / float64(n)
	result := make([]int16, m)
	for i, v := range out {
		result[i] = saturate(v * scale)
	}
	return result, nil
}

// saturate quantizes a sample to signed 16-bit with clamping at the range
// bounds instead of integer wraparound. Interpolation overshoot past full
// scale is expected for band-limited resampling of sharp transients.
func saturate(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
