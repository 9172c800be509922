package deviceapi

import "context"

// API paths served by the controller firmware.
const (
	PathConfig      = "/api/config"
	PathInfo        = "/api/info"
	PathDebug       = "/api/debug"
	PathSaveOffline = "/api/save-offline"
	PathLoadOffline = "/api/load-offline"
)

// Info is the subset of GET /api/info we care about.
type Info struct {
	Success        bool `json:"success"`
	BoardCount     int  `json:"boardCount"`
	ServosPerBoard int  `json:"servosPerBoard"`
}

// Client is a narrow interface over the controller HTTP API.
// Keep it small so the backup and restore flows stay testable with FakeClient.
type Client interface {
	// Config returns the raw GET /api/config document.
	Config(ctx context.Context) ([]byte, error)
	// Info is the liveness/readiness probe.
	Info(ctx context.Context) (Info, error)
	// Debug is an informational reachability check.
	Debug(ctx context.Context) error

	// Offline storage survives a filesystem flash.
	SaveOffline(ctx context.Context) error
	LoadOffline(ctx context.Context) error
}
