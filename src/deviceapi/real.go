package deviceapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"servo-backup/src/device"
	"servo-backup/src/logging"
)

// maxBody caps how much of a response we read; configs are a few KiB.
const maxBody = 4 << 20

// Options configures the HTTP client.
type Options struct {
	// Timeout bounds config and offline-storage calls.
	Timeout time.Duration
	// ProbeTimeout bounds the info and debug checks.
	ProbeTimeout time.Duration
	// HTTPClient is used when set, mainly by tests.
	HTTPClient *http.Client
}

// HTTPClient talks to the controller firmware over plain HTTP.
type HTTPClient struct {
	addr         device.Address
	hc           *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
}

// New returns a client for addr.
func New(addr device.Address, opts Options) *HTTPClient {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &HTTPClient{addr: addr, hc: hc, timeout: opts.Timeout, probeTimeout: opts.ProbeTimeout}
}

// Address returns the device address the client targets.
func (c *HTTPClient) Address() device.Address { return c.addr }

func (c *HTTPClient) Config(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, PathConfig, c.timeout)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, classified("GET "+PathConfig, Malformed, fmt.Errorf("response is not valid JSON (%d bytes)", len(body)))
	}
	return body, nil
}

func (c *HTTPClient) Info(ctx context.Context) (Info, error) {
	body, err := c.do(ctx, http.MethodGet, PathInfo, c.probeTimeout)
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		// A 200 is enough to call the device ready; the body is informational.
		logging.Debug().Err(err).Str("op", "GET "+PathInfo).Msg("info body not decodable")
	}
	return info, nil
}

func (c *HTTPClient) Debug(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, PathDebug, c.probeTimeout)
	return err
}

func (c *HTTPClient) SaveOffline(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathSaveOffline, c.timeout)
	return err
}

func (c *HTTPClient) LoadOffline(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathLoadOffline, c.timeout)
	return err
}

// do performs one bounded request and classifies failures.
func (c *HTTPClient) do(ctx context.Context, method, path string, timeout time.Duration) ([]byte, error) {
	op := method + " " + path
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.addr.BaseURL()+path, http.NoBody)
	if err != nil {
		return nil, classified(op, Unreachable, fmt.Errorf("create request: %w", err))
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		outcome := Unreachable
		if isTimeout(err) {
			outcome = Timeout
		}
		logging.Debug().Str("op", op).Str("device", c.addr.String()).Str("outcome", outcome.String()).Err(err).Msg("device request failed")
		return nil, classified(op, outcome, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	logging.Debug().Str("op", op).Str("device", c.addr.String()).Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).Int("bytes", len(body)).Msg("device request")

	if resp.StatusCode != http.StatusOK {
		return nil, classified(op, Rejected, &StatusError{Op: op, Code: resp.StatusCode})
	}
	if err != nil {
		outcome := Unreachable
		if isTimeout(err) {
			outcome = Timeout
		}
		return nil, classified(op, outcome, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
