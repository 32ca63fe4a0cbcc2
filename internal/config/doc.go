// Package config provides configuration loading and validation for the
// audio streamer. It handles YAML-based configuration with per-section
// validation covering capture parameters, device selection, the monitoring
// API, and logging.
package config
