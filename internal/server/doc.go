// Package server implements the HTTP API for monitoring the audio capture
// pipeline: health, coordinator status, configuration, and Prometheus
// metrics endpoints.
package server
