// Package stream provides the multi-device streaming coordinator. It owns
// the set of device sessions, runs the synchronized read cycle across them,
// resamples every chunk to the target rate, and exposes the results as lazy
// sequences of per-device frames or mixed mono chunks.
package stream
