// Package device wraps the physical audio input API. It exposes the Host
// and Stream interfaces the capture core is written against, a PortAudio
// implementation of both, and the Session type that owns one hardware
// input stream across its open/read/close lifecycle.
package device
