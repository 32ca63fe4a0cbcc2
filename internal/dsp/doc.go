// Package dsp implements the pure signal-processing stages of the capture
// pipeline: band-limited sample rate conversion and multi-device mixdown.
// All functions are deterministic, perform no I/O, and hold no shared
// mutable state, so they are safe to call concurrently from independent
// device pipelines.
package dsp
