// Package audio defines the PCM chunk type shared across the capture
// pipeline. It handles the little-endian 16-bit sample layout of the
// produced-data contract and the conversions between samples and raw bytes.
package audio
